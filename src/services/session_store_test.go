package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/models"
)

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(NewSessionCache(time.Minute))

	fresh := store.Get(42)
	assert.Equal(t, int64(42), fresh.UserID)
	assert.Empty(t, fresh.Rows)

	fresh.LoadedAt = time.Now()
	store.Save(fresh)
	assert.Same(t, fresh, store.Get(42))
	assert.NotSame(t, fresh, store.Get(43))

	store.Delete(42)
	assert.True(t, store.Get(42).LoadedAt.IsZero())
}

func TestSessionStore_UpdateSerializesPerUser(t *testing.T) {
	store := NewSessionStore(NewSessionCache(time.Minute))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(7, func(current *models.Session) (*models.Session, error) {
				next := current.Clone()
				time.Sleep(time.Millisecond)
				next.Uploads[models.SourceType(fmt.Sprintf("upload_%d", i))] = models.SourceResult{}
				return next, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Get(7).Uploads, writers)
}

func TestSessionStore_UpdateErrorKeepsSession(t *testing.T) {
	store := NewSessionStore(NewSessionCache(time.Minute))
	saved, err := store.Update(3, func(current *models.Session) (*models.Session, error) {
		next := current.Clone()
		next.Sources = []models.SourceType{models.SourceCSVUpload}
		return next, nil
	})
	require.NoError(t, err)

	_, err = store.Update(3, func(current *models.Session) (*models.Session, error) {
		return nil, errors.New("load failed")
	})
	require.Error(t, err)
	assert.Same(t, saved, store.Get(3))
}

package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/conciliador/src/models"
)

const ckUserSession = "session_user_%d"

// SessionStore keeps one dashboard session per user in memory. Pipeline steps
// run through Update, which serializes them per user so that concurrent
// requests of the same user never overwrite each other's result.
type SessionStore struct {
	cache *cache.Cache

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewSessionStore stores sessions in c; entries expire after the cache's default expiration.
func NewSessionStore(c *cache.Cache) *SessionStore {
	return &SessionStore{cache: c, locks: map[int64]*sync.Mutex{}}
}

func (s *SessionStore) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Update runs fn on the user's current session while holding the user's lock
// and saves the session it returns. On error nothing is saved.
func (s *SessionStore) Update(userID int64, fn func(current *models.Session) (*models.Session, error)) (*models.Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	next, err := fn(s.Get(userID))
	if err != nil {
		return nil, err
	}
	if next != nil {
		next.UserID = userID
		s.Save(next)
	}
	return next, nil
}

// NewSessionCache builds the cache behind a SessionStore.
func NewSessionCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = DefaultCacheExpiration
	}
	return cache.New(ttl, CacheCleanupInterval)
}

// Get returns the user's session, or a fresh empty one.
func (s *SessionStore) Get(userID int64) *models.Session {
	if cached, found := s.cache.Get(fmt.Sprintf(ckUserSession, userID)); found {
		return cached.(*models.Session)
	}
	return models.NewSession(userID)
}

// Save replaces the user's session and restarts its expiration.
func (s *SessionStore) Save(session *models.Session) {
	if session == nil {
		return
	}
	s.cache.Set(fmt.Sprintf(ckUserSession, session.UserID), session, cache.DefaultExpiration)
}

// Delete drops the user's session, e.g. on logout. It waits for a running Update.
func (s *SessionStore) Delete(userID int64) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	s.cache.Delete(fmt.Sprintf(ckUserSession, userID))
}

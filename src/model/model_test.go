package model

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "model.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sourceURL, err := database.MigrationsSourceURL(filepath.Join("..", "..", "db", "migrations"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, sourceURL))
	return db
}

func TestUserCRUD(t *testing.T) {
	db := newTestDB(t)

	u := &User{Username: "ana", Email: "ana@example.com", Password: "hash"}
	require.NoError(t, u.CreateUser(db))
	assert.NotZero(t, u.ID)

	dup := &User{Username: "ana", Password: "hash"}
	assert.ErrorIs(t, dup.CreateUser(db), ErrUsernameTaken)

	byName, err := GetUserByUsername(db, "ana")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.False(t, byName.IsAdmin)
	assert.False(t, byName.LastLoginAt.Valid)

	byName.IsAdmin = true
	byName.Email = "ana.souza@example.com"
	require.NoError(t, byName.UpdateUser(db))
	require.NoError(t, byName.UpdatePassword(db, "hash2"))
	require.NoError(t, byName.RecordLogin(db, "10.0.0.1"))
	require.NoError(t, byName.UpdateMfaSecret(db, "SECRET"))
	require.NoError(t, byName.UpdateMfaEnabled(db, true))

	byID, err := GetUserByID(db, u.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsAdmin)
	assert.Equal(t, "ana.souza@example.com", byID.Email)
	assert.Equal(t, "hash2", byID.Password)
	assert.Equal(t, 1, byID.LoginCount)
	assert.Equal(t, "10.0.0.1", byID.LastLoginIP)
	assert.True(t, byID.LastLoginAt.Valid)
	assert.Equal(t, "SECRET", byID.MfaSecret)
	assert.True(t, byID.MfaEnabled)

	other := &User{Username: "bruno", Password: "hash"}
	require.NoError(t, other.CreateUser(db))
	users, err := ListUsers(db)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0].Username)

	n, err := CountUsers(db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, DeleteUser(db, other.ID))
	assert.ErrorIs(t, DeleteUser(db, other.ID), sql.ErrNoRows)
	_, err = GetUserByID(db, other.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRosterReplace(t *testing.T) {
	db := newTestDB(t)
	admin := &User{Username: "admin", Password: "hash", IsAdmin: true}
	require.NoError(t, admin.CreateUser(db))

	entries, err := ListRoster(db)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, ReplaceRoster(db, []models.RosterEntry{
		{Cnpj: "44555666000199", ResponsavelComercial: "Bruno", Produto: "Maquininha"},
		{Cnpj: "11222333000181", ResponsavelComercial: "Ana", Produto: "Link"},
	}, admin.ID))

	entries, err = ListRoster(db)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "11222333000181", entries[0].Cnpj)

	require.NoError(t, ReplaceRoster(db, []models.RosterEntry{
		{Cnpj: "11222333000181", ResponsavelComercial: "Carla", Produto: "Link"},
	}, 0))
	entries, err = ListRoster(db)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Carla", entries[0].ResponsavelComercial)
}

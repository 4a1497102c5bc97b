package services

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/database"
)

func newRosterService(t *testing.T) RosterService {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sourceURL, err := database.MigrationsSourceURL(filepath.Join("..", "..", "db", "migrations"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, sourceURL))
	return NewRosterService(db)
}

func TestRosterService_Import(t *testing.T) {
	svc := newRosterService(t)
	file := "cnpj;responsavel_comercial;produto\n" +
		"11.222.333/0001-81;Ana;Maquininha\n" +
		"11.222.333/0001-82;Bruno;ERP\n"

	res, err := svc.Import(strings.NewReader(file), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, []string{"11222333000182"}, res.Rejected)

	entries, err := svc.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "11222333000181", entries[0].Cnpj)
	assert.Equal(t, "Ana", entries[0].ResponsavelComercial)
}

func TestRosterService_ImportNothingValid(t *testing.T) {
	svc := newRosterService(t)
	_, err := svc.Import(strings.NewReader("cnpj;produto\n123;X\n"), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Import(strings.NewReader("nome;produto\nA;X\n"), 0)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

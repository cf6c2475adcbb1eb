package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	id, name, err := parseMigrationFilename("002_create_trades.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, "create trades", name)

	_, _, err = parseMigrationFilename("create_trades.sql")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	m := NewMigrator(nil)
	require.NoError(t, m.Load(embeddedMigrations, "migrations"))

	assert.Equal(t, []int{1, 2, 3}, m.orderedIDs())
	assert.Equal(t, "executed contracts, one row per participant position", m.migrations[2].Description)
	assert.Len(t, m.migrations[1].Checksum, 64)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.sql": {Data: []byte("SELECT 2;")},
	}
	err := NewMigrator(nil).Load(fsys, "m")
	assert.ErrorContains(t, err, "duplicate migration id 1")
}

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCreatesSchema(t *testing.T) {
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	version, err := schemaVersion(database.DB)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	for _, table := range []string{"pending_trades", "settings", "schema_version"} {
		var name string
		err := database.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	database, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	// Reopening re-runs migrate against an up-to-date schema.
	database, err = Open(dir)
	require.NoError(t, err)
	defer database.Close()

	version, err := schemaVersion(database.DB)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

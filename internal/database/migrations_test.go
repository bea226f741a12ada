package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesAreOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, []string{"001_init_schema.sql", "002_follower_symbol_filter.sql"}, names)
}

func TestInitSchemaDeclaresIdempotenceKey(t *testing.T) {
	sql, err := migrationFiles.ReadFile("migrations/001_init_schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "UNIQUE (master_trade_id, follower_id)")
	assert.Contains(t, string(sql), "follower_id       UUID NOT NULL REFERENCES followers (id)")
}

func TestSymbolFilterMigrationDefaultsToAllSymbols(t *testing.T) {
	sql, err := migrationFiles.ReadFile("migrations/002_follower_symbol_filter.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "symbol_filter TEXT[] NOT NULL DEFAULT '{}'")
}

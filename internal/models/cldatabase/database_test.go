package cldatabase

import (
	"littlefolio/internal/models/clconfig"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSqlite(t *testing.T) {
	db, err := Open(clconfig.DatabaseConfig{
		Db:   "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, true, "error")
	require.NoError(t, err)

	for _, table := range []string{"visitors", "sessions", "page_views", "analytics_events", "daily_summaries"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(clconfig.DatabaseConfig{Db: "oracle"}, true, "error")
	assert.Error(t, err)
}

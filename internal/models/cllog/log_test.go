package cllog

import (
	"littlefolio/internal/models/clconfig"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLevelFromJSON(t *testing.T) {
	assert.Equal(t, "info", extractLevelFromJSON(`{"level":"info","message":"ok"}`))
	assert.Equal(t, "warn", extractLevelFromJSON(`{"time":"x","level":"warn"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"message":"sans niveau"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"level":"tronqué`))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("n'importe"))
}

func TestBuildWriters(t *testing.T) {
	writers, err := buildWriters(clconfig.LoggerConfig{}, true)
	require.NoError(t, err)
	assert.Len(t, writers, 1)

	writers, err = buildWriters(clconfig.LoggerConfig{
		File: clconfig.LoggerFileConfig{
			Enable: true,
			Path:   filepath.Join(t.TempDir(), "logs", "app.log"),
		},
	}, false)
	require.NoError(t, err)
	assert.Len(t, writers, 2)

	_, err = buildWriters(clconfig.LoggerConfig{
		File: clconfig.LoggerFileConfig{Enable: true},
	}, true)
	assert.Error(t, err)
}

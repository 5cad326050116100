package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/config"
)

func TestLoggerAddsServiceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	logger, err := newLogger(config.LoggerConfig{Level: "debug", Service: "dispute-service", Env: "production"}, []string{path})
	require.NoError(t, err)

	logger.Debug("ticket transition", zap.String("ticket_id", "t-1"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "ticket transition", entry["message"])
	assert.Equal(t, "dispute-service", entry["service"])
	assert.Equal(t, "production", entry["env"])
	assert.Equal(t, "t-1", entry["ticket_id"])
}

func TestLoggerFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	logger, err := newLogger(config.LoggerConfig{Level: "loud"}, []string{path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, string(raw), "shown")
}

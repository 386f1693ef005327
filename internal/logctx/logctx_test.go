package logctx

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpuskit.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", slog.String("k", "v"))
	assert.FileExists(t, path)
}

func TestLoggerFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))
}

func TestWithLoggerRoundTrips(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug", WriteToStderr: false})
	require.NoError(t, err)
	defer cleanup()

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, Logger(ctx))
}

func TestRequestIDIsEightHexChars(t *testing.T) {
	id := RequestID()
	assert.Len(t, id, 8)
}

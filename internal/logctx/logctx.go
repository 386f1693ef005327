// Package logctx eliminates the global mutable logger the teacher's
// internal/logging package relies on (slog.Default/slog.SetDefault):
// every logger corpuskit code uses is constructed once at startup and
// threaded explicitly via context.Context, per spec.md §9's "no global
// mutable state" guidance. The rotation, JSON-formatting and MCP-mode
// stdout discipline are otherwise carried over unchanged from the
// teacher's internal/logging package.
package logctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type ctxKey struct{}

// WithLogger returns a context carrying logger, retrievable with Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Logger returns the logger carried on ctx, or slog.Default() if none was
// attached — the fallback exists only for call sites (tests, early
// bootstrap) that haven't threaded a context-scoped logger yet.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Config controls where and how corpuskit writes its structured logs.
type Config struct {
	Level         string // debug, info, warn, error
	FilePath      string // empty disables file logging
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
}

// DefaultConfig returns the default logging setup for the CLI: info level,
// JSON to ~/.config/corpuskit/logs/corpuskit.log, mirrored to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// MCPConfig returns the logging setup for `corpuskit serve`: the MCP
// protocol requires stdout to carry only JSON-RPC frames, so stderr output
// is honored unless MCP_DISABLE_CONSOLE_LOGGING is set, and the level and
// log file path can be overridden via MCP_LOG_LEVEL and MCP_LOG_FILE.
func MCPConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("MCP_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("MCP_LOG_FILE"); v != "" {
		cfg.FilePath = v
	}
	cfg.WriteToStderr = os.Getenv("MCP_DISABLE_CONSOLE_LOGGING") == ""
	return cfg
}

// Setup builds a *slog.Logger per cfg and returns it with a cleanup func
// that flushes and closes the underlying log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	var rw *rotatingWriter
	var err error

	if cfg.FilePath != "" {
		rw, err = newRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
	}
	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	logger := slog.New(handler)

	cleanup := func() {
		if rw != nil {
			_ = rw.Close()
		}
	}
	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultLogDir returns ~/.config/corpuskit/logs, falling back to a temp
// directory when the home directory can't be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "corpuskit", "logs")
	}
	return filepath.Join(home, ".config", "corpuskit", "logs")
}

// DefaultLogPath returns the default server log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "corpuskit.log")
}

// RequestID returns a short hex identifier for log correlation, grounded
// on the teacher's generateRequestID in internal/mcp/server.go.
func RequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "????????"
	}
	return hex.EncodeToString(b)
}

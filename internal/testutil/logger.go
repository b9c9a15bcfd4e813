// Package testutil provides shared test fixtures and a logger that writes to t.Log.
package testutil

import (
	"log/slog"
	"testing"

	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a slog logger backed by a zaptest core, the same
// handler chain the CLI builds, writing to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	zl := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
	return slog.New(zapslog.NewHandler(zl.Core()))
}

package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/dragonrealm/internal/dependencies/mocks"
)

// Epoch is the start time used by mock clocks in tests
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewClock returns a mock clock set to Epoch
func NewClock() *mocks.MockClock {
	return mocks.NewMockClock(Epoch)
}

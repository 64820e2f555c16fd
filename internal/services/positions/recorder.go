// Package positions persists last-known positions off the realtime path.
package positions

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/mcoot/dragonrealm/internal/model"
)

// Store is where positions end up
type Store interface {
	RecordLastPosition(ctx context.Context, userID model.UserID, pos model.Position) error
}

// Config holds recorder settings
type Config struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns default recorder configuration
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// Recorder coalesces position updates per user and writes only the latest
// one, either periodically or when a user leaves
type Recorder struct {
	store  Store
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	pending map[model.UserID]model.Position
}

// NewRecorder creates a new Recorder
func NewRecorder(store Store, cfg Config, logger *slog.Logger) *Recorder {
	defaults := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	return &Recorder{
		store:   store,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "positions")),
		pending: make(map[model.UserID]model.Position),
	}
}

// Record notes a user's latest position. It never blocks on storage.
func (r *Recorder) Record(userID model.UserID, pos model.Position) {
	r.mu.Lock()
	r.pending[userID] = pos
	r.mu.Unlock()
}

// Latest returns a user's unwritten position, if any
func (r *Recorder) Latest(userID model.UserID) (model.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.pending[userID]
	return pos, ok
}

// Pending returns the number of users with unwritten positions
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FlushUser writes one user's pending position now. The position stays
// visible to Latest until the write succeeds.
func (r *Recorder) FlushUser(ctx context.Context, userID model.UserID) error {
	r.mu.Lock()
	pos, ok := r.pending[userID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.write(ctx, userID, pos)
}

// Flush writes every pending position
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := maps.Clone(r.pending)
	r.mu.Unlock()

	var errs []error
	for userID, pos := range batch {
		if err := r.write(ctx, userID, pos); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run flushes on an interval until ctx is done, then flushes once more
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = r.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
			defer cancel()
			if err := r.Flush(final); err != nil {
				r.logger.Warn("final position flush incomplete", slog.Any("error", err))
			}
			return nil
		}
	}
}

func (r *Recorder) write(ctx context.Context, userID model.UserID, pos model.Position) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	err := r.store.RecordLastPosition(ctx, userID, pos)
	if err == nil {
		r.settle(userID, pos)
		return nil
	}
	if errors.Is(err, model.ErrUserNotFound) {
		r.logger.Debug("dropping position for unknown user", slog.String("user_id", string(userID)))
		r.settle(userID, pos)
		return nil
	}

	r.logger.Warn("failed to persist position",
		slog.String("user_id", string(userID)),
		slog.Any("error", err))
	return err
}

// settle clears a written position unless a newer one arrived meanwhile
func (r *Recorder) settle(userID model.UserID, written model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.pending[userID]; ok && pos == written {
		delete(r.pending, userID)
	}
}

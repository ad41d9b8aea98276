package paints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/snapshot"
)

// Fetcher retrieves the bulk cosmetics payload from the upstream service.
type Fetcher interface {
	FetchCosmetics(ctx context.Context, userIdentifier string) ([]byte, error)
}

// SnapshotStore keeps the last payload that was loaded successfully.
type SnapshotStore interface {
	Save(payload []byte, fetchedAt time.Time) error
	Load() (*snapshot.Snapshot, error)
}

// Loader fetches the bulk cosmetics payload and folds it into a Registry.
type Loader struct {
	registry *Registry
	fetcher  Fetcher
	logger   logger.Logger

	// Snapshots, if set, is restored by Initialize and updated after every
	// successful Load.
	Snapshots SnapshotStore

	now func() time.Time
}

func NewLoader(registry *Registry, fetcher Fetcher, log logger.Logger) *Loader {
	return &Loader{
		registry: registry,
		fetcher:  fetcher,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// Load performs one fetch, keyed by login, and applies the result. If the
// fetch fails the registry is left untouched and the error is returned.
// Load does not retry; that is up to the Fetcher.
func (l *Loader) Load(ctx context.Context) error {
	payload, err := l.fetcher.FetchCosmetics(ctx, constants.UserIdentifierLogin)
	if err != nil {
		l.logger.Error("failed to fetch cosmetics", "error", err)
		return fmt.Errorf("fetch cosmetics: %w", err)
	}

	stats := l.registry.LoadPaints(ctx, payload)
	l.logger.Info("loaded cosmetics",
		"parsed", stats.Parsed,
		"skipped", stats.Skipped,
		"assigned", stats.Assigned)

	if l.Snapshots != nil {
		if err := l.Snapshots.Save(payload, l.now()); err != nil {
			l.logger.Warn("failed to save cosmetics snapshot", "error", err)
		}
	}

	return nil
}

// Restore applies the saved snapshot, if there is one. A missing snapshot is
// not an error.
func (l *Loader) Restore(ctx context.Context) error {
	if l.Snapshots == nil {
		return nil
	}

	s, err := l.Snapshots.Load()
	if errors.Is(err, constants.ErrNoSnapshot) {
		l.logger.Debug("no cosmetics snapshot to restore")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	stats := l.registry.LoadPaints(ctx, s.Payload)
	l.logger.Info("restored cosmetics snapshot",
		"fetched_at", s.FetchedAt,
		"parsed", stats.Parsed,
		"skipped", stats.Skipped)

	return nil
}

// Initialize is the startup entry point. It restores the snapshot
// synchronously and then runs Load once in the background. The returned
// channel receives Load's result and is closed.
func (l *Loader) Initialize(ctx context.Context) <-chan error {
	if err := l.Restore(ctx); err != nil {
		l.logger.Warn("ignoring unusable cosmetics snapshot", "error", err)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.Load(ctx)
	}()

	return done
}

package paints

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpaint/paints/internal/testlog"
	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
)

var errUpstream = errors.New("upstream unavailable")

func TestLoaderLoad(t *testing.T) {
	r, _ := newTestRegistry()
	fetcher := &fakeFetcher{payload: payloadOf(linearDescription("p1", "forsen"))}
	snapshots := &memSnapshots{}

	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoader(r, fetcher, nil)
	l.Snapshots = snapshots
	l.now = func() time.Time { return fetchedAt }

	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, []string{constants.UserIdentifierLogin}, fetcher.identifiers)
	assert.Equal(t, "login", fetcher.identifiers[0])

	paint, ok := r.GetPaint("forsen")
	require.True(t, ok)
	assert.Equal(t, "p1", paint.ID())

	require.NotNil(t, snapshots.saved)
	assert.Equal(t, fetcher.payload, snapshots.saved.Payload)
	assert.Equal(t, fetchedAt, snapshots.saved.FetchedAt)
}

func TestLoaderLoadFailureLeavesRegistry(t *testing.T) {
	r, _ := newTestRegistry()
	r.LoadPaints(context.Background(), payloadOf(linearDescription("p1", "forsen")))

	snapshots := &memSnapshots{}
	l := NewLoader(r, &fakeFetcher{err: errUpstream}, nil)
	l.Snapshots = snapshots

	err := l.Load(context.Background())
	require.ErrorIs(t, err, errUpstream)

	paint, ok := r.GetPaint("forsen")
	require.True(t, ok)
	assert.Equal(t, "p1", paint.ID())
	assert.Nil(t, snapshots.saved)
}

func TestLoaderLoadSnapshotFailureIsNotFatal(t *testing.T) {
	r, _ := newTestRegistry()
	l := NewLoader(r, &fakeFetcher{payload: payloadOf(linearDescription("p1", "forsen"))}, nil)
	l.Snapshots = &memSnapshots{saveErr: errors.New("disk full")}

	require.NoError(t, l.Load(context.Background()))

	_, ok := r.GetPaint("forsen")
	assert.True(t, ok)
}

func TestLoaderRestore(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		r, _ := newTestRegistry()
		assert.NoError(t, NewLoader(r, &fakeFetcher{}, nil).Restore(context.Background()))
	})

	t.Run("nothing saved", func(t *testing.T) {
		r, _ := newTestRegistry()
		l := NewLoader(r, &fakeFetcher{}, nil)
		l.Snapshots = &memSnapshots{}

		assert.NoError(t, l.Restore(context.Background()))
		paints, _ := r.Len()
		assert.Zero(t, paints)
	})

	t.Run("saved", func(t *testing.T) {
		snapshots := &memSnapshots{}
		require.NoError(t, snapshots.Save(payloadOf(linearDescription("p1", "forsen")), time.Now()))

		r, _ := newTestRegistry()
		l := NewLoader(r, &fakeFetcher{}, nil)
		l.Snapshots = snapshots

		require.NoError(t, l.Restore(context.Background()))
		paint, ok := r.GetPaint("forsen")
		require.True(t, ok)
		assert.Equal(t, "p1", paint.ID())
	})

	t.Run("unreadable", func(t *testing.T) {
		r, _ := newTestRegistry()
		l := NewLoader(r, &fakeFetcher{}, nil)
		l.Snapshots = &memSnapshots{loadErr: constants.ErrSnapshotVersion}

		assert.ErrorIs(t, l.Restore(context.Background()), constants.ErrSnapshotVersion)
	})
}

func TestLoaderInitialize(t *testing.T) {
	snapshots := &memSnapshots{}
	require.NoError(t, snapshots.Save(payloadOf(linearDescription("stale", "forsen")), time.Now()))

	fetcher := &fakeFetcher{
		payload: payloadOf(linearDescription("fresh", "forsen")),
		block:   make(chan struct{}),
	}

	r, _ := newTestRegistry()
	l := NewLoader(r, fetcher, nil)
	l.Snapshots = snapshots

	done := l.Initialize(context.Background())

	// the snapshot is applied before Initialize returns
	paint, ok := r.GetPaint("forsen")
	require.True(t, ok)
	assert.Equal(t, "stale", paint.ID())

	close(fetcher.block)

	select {
	case err, ok := <-done:
		require.True(t, ok)
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
	}

	_, ok = <-done
	assert.False(t, ok, "channel is closed after the result")

	paint, ok = r.GetPaint("forsen")
	require.True(t, ok)
	assert.Equal(t, "fresh", paint.ID())
}

func TestLoaderInitializeCancelled(t *testing.T) {
	r, _ := newTestRegistry()
	l := NewLoader(r, &fakeFetcher{block: make(chan struct{})}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := l.Initialize(ctx)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
	}
}

func TestLoaderLogs(t *testing.T) {
	h := testlog.New(testlog.WithIgnoreDebug())
	log := logger.New(h)
	r, _ := newTestRegistry()

	ok := NewLoader(r, &fakeFetcher{payload: payloadOf(
		linearDescription("p1", "forsen"),
		`{"id":"bad","function":"NOPE","users":["nymn"]}`,
	)}, log)
	require.NoError(t, ok.Load(context.Background()))

	failing := NewLoader(r, &fakeFetcher{err: errUpstream}, log)
	require.Error(t, failing.Load(context.Background()))

	assert.Equal(t, []string{
		"INFO: loaded cosmetics parsed=1, skipped=1, assigned=1",
		"ERROR: failed to fetch cosmetics error=upstream unavailable",
	}, h.Lines())
}

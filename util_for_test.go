package paints

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/models"
	"github.com/chatpaint/paints/pkg/snapshot"
)

var errImageNotFound = errors.New("image not found")

// fakeImages is an in-memory ImageStore. Unknown URLs fail.
type fakeImages struct {
	mu     sync.Mutex
	images map[string]*models.Image
	calls  []string
	scales []float64
	delay  time.Duration
}

func newFakeImages(urls ...string) *fakeImages {
	f := &fakeImages{images: make(map[string]*models.Image)}
	for _, u := range urls {
		f.images[u] = &models.Image{URL: u, Scale: 1, Format: "image/png", Width: 2, Height: 2, Frame: image.NewNRGBA(image.Rect(0, 0, 2, 2))}
	}
	return f
}

func (f *fakeImages) Get(ctx context.Context, url string, scale float64) (*models.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.scales = append(f.scales, scale)
	img, ok := f.images[url]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, errImageNotFound)
	}
	return img, nil
}

func (f *fakeImages) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeFetcher returns a canned payload or error and records the identifier.
type fakeFetcher struct {
	mu          sync.Mutex
	payload     []byte
	err         error
	identifiers []string
	block       chan struct{}
}

func (f *fakeFetcher) FetchCosmetics(ctx context.Context, userIdentifier string) ([]byte, error) {
	f.mu.Lock()
	f.identifiers = append(f.identifiers, userIdentifier)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.payload, f.err
}

// memSnapshots is an in-memory SnapshotStore.
type memSnapshots struct {
	mu      sync.Mutex
	saved   *snapshot.Snapshot
	saveErr error
	loadErr error
}

func (m *memSnapshots) Save(payload []byte, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = &snapshot.Snapshot{Version: snapshot.Version, FetchedAt: fetchedAt, Payload: payload}
	return nil
}

func (m *memSnapshots) Load() (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.saved == nil {
		return nil, constants.ErrNoSnapshot
	}
	return m.saved, nil
}

func linearDescription(id string, users ...string) string {
	return fmt.Sprintf(`{"id":%q,"name":"paint %s","function":"LINEAR_GRADIENT","angle":90,`+
		`"stops":[{"at":0,"color":-16776961},{"at":1,"color":65535}],"users":%s}`, id, id, usersJSON(users))
}

func usersJSON(users []string) string {
	out := "["
	for i, u := range users {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", u)
	}
	return out + "]"
}

func payloadOf(descriptions ...string) []byte {
	out := `{"paints":[`
	for i, d := range descriptions {
		if i > 0 {
			out += ","
		}
		out += d
	}
	return []byte(out + `]}`)
}

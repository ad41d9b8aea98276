// Package imagestore downloads and decodes the images behind URL paints.
package imagestore

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/models"
)

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/gif":  true,
	"image/jpeg": true,
	"image/webp": true,
}

type cacheKey struct {
	url   string
	scale float64
}

type entry struct {
	key   cacheKey
	image *models.Image
}

// Store resolves image URLs to decoded images. Successful results are kept in
// a bounded LRU cache keyed by (url, scale); failures are not cached.
// Concurrent requests for the same key share one download, which runs
// detached from any single caller's cancellation.
type Store struct {
	// MaxBytes caps the size of a downloaded image.
	MaxBytes int64

	// Timeout bounds one shared download. It is independent of the callers'
	// contexts, so one caller giving up does not fail the others.
	Timeout time.Duration

	httpClient *http.Client
	logger     logger.Logger
	group      singleflight.Group

	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

// New creates a Store that caches up to capacity images. A capacity of 0 or
// less uses constants.DefaultImageCacheSize.
func New(capacity int, log logger.Logger) *Store {
	if capacity <= 0 {
		capacity = constants.DefaultImageCacheSize
	}
	return &Store{
		MaxBytes: constants.DefaultMaxImageBytes,
		Timeout:  constants.DefaultHTTPTimeout,
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		logger:   logger.OrNop(log),
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element),
	}
}

func (s *Store) SetHTTPClient(client *http.Client) *Store {
	s.httpClient = client
	return s
}

// Get returns the image at url, downloading it on a cache miss.
func (s *Store) Get(ctx context.Context, url string, scale float64) (*models.Image, error) {
	key := cacheKey{url: url, scale: scale}
	if img, ok := s.cached(key); ok {
		return img, nil
	}

	flight := s.group.DoChan(url+"@"+strconv.FormatFloat(scale, 'g', -1, 64), func() (any, error) {
		if img, ok := s.cached(key); ok {
			return img, nil
		}

		downloadCtx := context.WithoutCancel(ctx)
		if s.Timeout > 0 {
			var cancel context.CancelFunc
			downloadCtx, cancel = context.WithTimeout(downloadCtx, s.Timeout)
			defer cancel()
		}

		img, err := s.download(downloadCtx, url, scale)
		if err != nil {
			return nil, err
		}
		s.store(key, img)
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			s.logger.Debug("image download failed", "url", url, "error", res.Err)
			return nil, res.Err
		}
		return res.Val.(*models.Image), nil
	}
}

// Len returns the number of cached images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) cached(key cacheKey) (*models.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).image, true
}

func (s *Store) store(key cacheKey, img *models.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		el.Value.(*entry).image = img
		s.order.MoveToFront(el)
		return
	}

	s.entries[key] = s.order.PushFront(&entry{key: key, image: img})
	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).key)
	}
}

func (s *Store) download(ctx context.Context, url string, scale float64) (*models.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", constants.ErrUnexpectedStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.MaxBytes {
		return nil, fmt.Errorf("%w: %s", constants.ErrImageTooLarge, url)
	}

	return decode(url, scale, data)
}

func decode(url string, scale float64, data []byte) (*models.Image, error) {
	kind, err := filetype.Match(data)
	if err != nil || !supportedTypes[kind.MIME.Value] {
		return nil, fmt.Errorf("%w: %s", constants.ErrUnsupportedImage, url)
	}

	frame, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}

	bounds := frame.Bounds()
	return &models.Image{
		URL:    url,
		Scale:  scale,
		Format: kind.MIME.Value,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Frame:  frame,
	}, nil
}

// Package snapshot persists the last successfully fetched cosmetics payload
// so a restarted process can serve paints before the first fetch completes.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/chatpaint/paints/internal/codec"
	"github.com/chatpaint/paints/pkg/constants"
)

// Version is the on-disk format version written by Save.
const Version = 1

// Snapshot is one saved payload.
type Snapshot struct {
	Version   int       `cbor:"version"`
	FetchedAt time.Time `cbor:"fetched_at"`
	Payload   []byte    `cbor:"payload"`
}

// File stores a Snapshot at Path, CBOR-encoded.
type File struct {
	Path string

	codec codec.Codec
}

func New(path string) *File {
	return &File{
		Path:  path,
		codec: codec.NewCBOR(),
	}
}

// Save replaces the snapshot atomically: it writes a temporary file in the
// same directory and renames it over Path.
func (f *File) Save(payload []byte, fetchedAt time.Time) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = f.codec.NewEncoder(tmp).Encode(Snapshot{
		Version:   Version,
		FetchedAt: fetchedAt.UTC(),
		Payload:   payload,
	})
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. It returns constants.ErrNoSnapshot if none was saved.
func (f *File) Load() (*Snapshot, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, constants.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer file.Close()

	var s Snapshot
	if err := f.codec.NewDecoder(file).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %d", constants.ErrSnapshotVersion, s.Version)
	}
	return &s, nil
}

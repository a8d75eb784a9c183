package jsonbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/FranksOps/partscout/internal/storage"
)

var (
	_ storage.Backend = (*jsonBackend)(nil)
	_ storage.Reader  = (*jsonBackend)(nil)
)

type jsonBackend struct {
	mu  sync.Mutex
	dir string
}

// New creates a backend that writes one JSON artifact per query into dir.
// The artifact is the ranked listing array and is replaced on every save.
func New(dir string) (storage.Backend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("json backend: %w", err)
	}
	return &jsonBackend{dir: dir}, nil
}

// Path returns the artifact path for query inside dir.
func Path(dir, query string) string {
	return filepath.Join(dir, storage.ArtifactName(query, "json"))
}

func (b *jsonBackend) Save(ctx context.Context, run *storage.Run) error {
	listings := run.Listings
	if listings == nil {
		listings = []storage.Listing{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(listings); err != nil {
		return fmt.Errorf("encode listings: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := Path(b.dir, run.Query)
	tmp, err := os.CreateTemp(b.dir, ".partscout-*.json")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Latest reads the artifact for query back. Only the listings and the
// file's modification time are recoverable from it.
func (b *jsonBackend) Latest(ctx context.Context, query string) (*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := Path(b.dir, query)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var listings []storage.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}

	run := &storage.Run{Query: query, Listings: listings}
	if info, err := os.Stat(path); err == nil {
		run.CreatedAt = info.ModTime().UTC()
	}
	return run, nil
}

func (b *jsonBackend) Close() error {
	return nil
}

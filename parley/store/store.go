// Package store persists encrypted session blobs.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound    = errors.New("store: blob not found")
	ErrInvalidName = errors.New("store: invalid blob name")
)

// BlobStore saves opaque blobs under a name. Save replaces any previous blob
// atomically: a concurrent or interrupted Save never leaves a partial blob.
type BlobStore interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

// Memory is an in-process BlobStore.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: map[string][]byte{}}
}

func (m *Memory) Save(_ context.Context, name string, blob []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[name] = append([]byte(nil), blob...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

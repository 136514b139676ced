package testutil

import (
	"context"
	"io"
	"sync"

	"cms-go/internal/cms"
	"cms-go/internal/objectstore"
)

// FaultyObjectStore wraps an in-memory store, counts calls and fails them
// on demand.
type FaultyObjectStore struct {
	*objectstore.MemoryStore

	mu         sync.Mutex
	puts       int
	deletes    int
	FailPut    bool
	FailDelete bool
	FailList   bool
}

var _ cms.ObjectStore = (*FaultyObjectStore)(nil)

// NewFaultyObjectStore creates an empty store stamped by clock.
func NewFaultyObjectStore(clock cms.Clock) *FaultyObjectStore {
	return &FaultyObjectStore{MemoryStore: objectstore.NewMemoryStore("https://cdn.test", clock)}
}

func (f *FaultyObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	f.puts++
	fail := f.FailPut
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.MemoryStore.Put(ctx, key, r, size, contentType)
}

func (f *FaultyObjectStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deletes++
	fail := f.FailDelete
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.MemoryStore.Delete(ctx, key)
}

func (f *FaultyObjectStore) List(ctx context.Context, prefix string) ([]cms.ObjectInfo, error) {
	f.mu.Lock()
	fail := f.FailList
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.MemoryStore.List(ctx, prefix)
}

// Puts returns the number of Put calls, failed ones included.
func (f *FaultyObjectStore) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// Deletes returns the number of Delete calls, failed ones included.
func (f *FaultyObjectStore) Deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

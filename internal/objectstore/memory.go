package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"cms-go/internal/cms"
)

type memoryObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemoryStore keeps objects in memory. It is safe for concurrent use.
type MemoryStore struct {
	baseURL string
	clock   cms.Clock
	mu      sync.RWMutex
	objects map[string]memoryObject
}

var _ cms.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. Public URLs are baseURL/key;
// objects are stamped with clock (wall time when nil).
func NewMemoryStore(baseURL string, clock cms.Clock) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	if clock == nil {
		clock = cms.SystemClock{}
	}
	return &MemoryStore{baseURL: baseURL, clock: clock, objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, modTime: m.clock.Now()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("object %s: %w", key, cms.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]cms.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []cms.ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, cms.ObjectInfo{Key: k, Size: int64(len(obj.data)), ModTime: obj.modTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) PublicURL(key string) string { return joinURL(m.baseURL, key) }

// ValidateSetup always succeeds.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error { return nil }

// ContentType returns the stored content type of key.
func (m *MemoryStore) ContentType(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.contentType, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

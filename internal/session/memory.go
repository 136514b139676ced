// Package session stores the per-browsing-session "visit already counted"
// flag.
package session

import (
	"context"
	"sync"
	"time"

	"cms-go/internal/cms"
)

// MemoryStore keeps flags in process memory. Flags expire after ttl.
type MemoryStore struct {
	ttl   time.Duration
	clock cms.Clock

	mu    sync.Mutex
	flags map[string]time.Time // session ID -> expiry
}

var _ cms.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, clock cms.Clock) *MemoryStore {
	if clock == nil {
		clock = cms.SystemClock{}
	}
	return &MemoryStore{ttl: ttl, clock: clock, flags: make(map[string]time.Time)}
}

func (m *MemoryStore) MarkCounted(ctx context.Context, sessionID string) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.flags[sessionID]; ok && now.Before(exp) {
		return false, nil
	}
	m.flags[sessionID] = now.Add(m.ttl)
	m.prune(now)
	return true, nil
}

func (m *MemoryStore) ClearCounted(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, sessionID)
	return nil
}

// Len returns the number of unexpired flags.
func (m *MemoryStore) Len() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(now)
	return len(m.flags)
}

func (m *MemoryStore) prune(now time.Time) {
	for id, exp := range m.flags {
		if !now.Before(exp) {
			delete(m.flags, id)
		}
	}
}

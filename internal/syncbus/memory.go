package syncbus

import (
	"context"
	"sync"

	"cms-go/internal/cms"
)

// MemoryTransport delivers changes within a single process.
type MemoryTransport struct {
	mu      sync.RWMutex
	deliver func(cms.Change)
}

var _ Transport = (*MemoryTransport)(nil)

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Publish delivers synchronously to the started hub. Changes published
// before Start are dropped.
func (m *MemoryTransport) Publish(ctx context.Context, c cms.Change) error {
	m.mu.RLock()
	deliver := m.deliver
	m.mu.RUnlock()
	if deliver != nil {
		deliver(c)
	}
	return nil
}

func (m *MemoryTransport) Start(ctx context.Context, deliver func(cms.Change)) error {
	m.mu.Lock()
	m.deliver = deliver
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.deliver = nil
		m.mu.Unlock()
	}()
	return nil
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	m.deliver = nil
	m.mu.Unlock()
	return nil
}

// Package syncbus is the content sync bus: per-table change notifications
// fanned out to in-process subscribers, carried between processes by a
// Transport.
package syncbus

import (
	"context"
	"fmt"
	"sync"

	"cms-go/internal/cms"
)

// Transport carries changes between every process sharing the bus. A
// process receives its own publications back through Start.
type Transport interface {
	Publish(ctx context.Context, c cms.Change) error

	// Start begins delivering received changes to deliver. It returns once
	// delivery is live; delivery stops when ctx is done.
	Start(ctx context.Context, deliver func(cms.Change)) error

	Close() error
}

// Hub fans changes out to subscribers. Bursts on one subscription are
// coalesced: while a callback runs, further changes collapse into a single
// pending notification carrying the latest change.
type Hub struct {
	transport Transport
	logger    cms.Logger
	max       int

	mu     sync.Mutex
	nextID uint64
	subs   map[cms.Table]map[uint64]*Subscription
	active int
	closed bool
}

var _ cms.Notifier = (*Hub)(nil)

// NewHub creates a hub over transport. max caps concurrent subscriptions;
// zero or less means unlimited.
func NewHub(transport Transport, max int, logger cms.Logger) *Hub {
	if logger == nil {
		logger = cms.NopLogger{}
	}
	return &Hub{
		transport: transport,
		logger:    logger,
		max:       max,
		subs:      make(map[cms.Table]map[uint64]*Subscription),
	}
}

// Start connects the hub to its transport.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.transport.Start(ctx, h.dispatch); err != nil {
		return fmt.Errorf("starting sync transport: %w", err)
	}
	return nil
}

// Publish sends c to every process on the bus, this one included.
func (h *Hub) Publish(ctx context.Context, c cms.Change) error {
	if err := h.transport.Publish(ctx, c); err != nil {
		return fmt.Errorf("publishing %s change: %w", c.Table, err)
	}
	return nil
}

// Subscribe registers onChange for table. onChange runs on a goroutine
// owned by the subscription, never concurrently with itself.
func (h *Hub) Subscribe(table cms.Table, onChange func(cms.Change)) (*Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", table)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("subscribe %s: hub closed", table)
	}
	if h.max > 0 && h.active >= h.max {
		return nil, fmt.Errorf("subscribe %s: %w (limit %d)", table, cms.ErrTooManySubscriptions, h.max)
	}

	h.nextID++
	s := &Subscription{
		id:       h.nextID,
		table:    table,
		hub:      h,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if h.subs[table] == nil {
		h.subs[table] = make(map[uint64]*Subscription)
	}
	h.subs[table][s.id] = s
	h.active++

	go s.run()
	h.logger.Debug("subscribed", "table", table, "subscription", s.id)
	return s, nil
}

// Unsubscribe releases s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if m, ok := h.subs[s.table]; ok {
		if _, ok := m[s.id]; ok {
			delete(m, s.id)
			h.active--
			if len(m) == 0 {
				delete(h.subs, s.table)
			}
		}
	}
	h.mu.Unlock()

	s.stop()
	h.logger.Debug("unsubscribed", "table", s.table, "subscription", s.id)
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Close releases every subscription and the transport.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, m := range h.subs {
		for _, s := range m {
			all = append(all, s)
		}
	}
	h.subs = make(map[cms.Table]map[uint64]*Subscription)
	h.active = 0
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return h.transport.Close()
}

func (h *Hub) dispatch(c cms.Change) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[c.Table]))
	for _, s := range h.subs[c.Table] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.notify(c)
	}
}

// Subscription is the handle returned by Hub.Subscribe.
type Subscription struct {
	id       uint64
	table    cms.Table
	hub      *Hub
	onChange func(cms.Change)

	mu     sync.Mutex
	latest cms.Change
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Table returns the subscribed table.
func (s *Subscription) Table() cms.Table { return s.table }

// Unsubscribe is shorthand for Hub.Unsubscribe(s).
func (s *Subscription) Unsubscribe() { s.hub.Unsubscribe(s) }

func (s *Subscription) notify(c cms.Change) {
	s.mu.Lock()
	s.latest = c
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
		// A notification is already pending; it will carry this change.
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			c := s.latest
			s.mu.Unlock()
			s.onChange(c)
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

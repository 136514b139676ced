package testutil

import (
	"context"
	"sync"

	"cms-go/internal/cms"
)

// RecordingNotifier captures published changes.
type RecordingNotifier struct {
	mu      sync.Mutex
	changes []cms.Change
	Fail    bool
}

var _ cms.Notifier = (*RecordingNotifier)(nil)

func (n *RecordingNotifier) Publish(ctx context.Context, c cms.Change) error {
	if n.Fail {
		return ErrInjected
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return nil
}

// Changes returns every captured change in publish order.
func (n *RecordingNotifier) Changes() []cms.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]cms.Change(nil), n.changes...)
}

// Tables returns the set of tables that received a change.
func (n *RecordingNotifier) Tables() map[cms.Table]bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[cms.Table]bool)
	for _, c := range n.changes {
		out[c.Table] = true
	}
	return out
}

package syncbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/database"
)

const (
	// DefaultPollInterval is how often a JournalTransport reads the journal
	// when no interval is configured.
	DefaultPollInterval = time.Second

	journalBatch     = 100
	journalRetention = time.Hour
)

// ChangeJournal is an append-only change log shared by every process that
// opens the same metadata store.
type ChangeJournal interface {
	AppendChange(ctx context.Context, c cms.Change) (int64, error)
	ChangesSince(ctx context.Context, after int64, limit int) ([]database.ChangeEntry, error)
	LatestChangeID(ctx context.Context) (int64, error)
	PruneChanges(ctx context.Context, before time.Time) (int64, error)
}

// JournalTransport carries changes through the metadata store: Publish
// appends to the journal and every process polls it. Local publications
// are delivered at once and skipped when the poller reaches them.
type JournalTransport struct {
	journal  ChangeJournal
	interval time.Duration
	logger   cms.Logger

	mu      sync.Mutex
	deliver func(cms.Change)
	own     map[int64]struct{}
	last    int64
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Transport = (*JournalTransport)(nil)

func NewJournalTransport(journal ChangeJournal, interval time.Duration, logger cms.Logger) *JournalTransport {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = cms.NopLogger{}
	}
	return &JournalTransport{
		journal:  journal,
		interval: interval,
		logger:   logger,
		own:      make(map[int64]struct{}),
	}
}

func (j *JournalTransport) Publish(ctx context.Context, c cms.Change) error {
	id, err := j.journal.AppendChange(ctx, c)
	if err != nil {
		return err
	}

	j.mu.Lock()
	deliver := j.deliver
	if deliver != nil && id > j.last {
		j.own[id] = struct{}{}
	}
	j.mu.Unlock()
	if deliver != nil {
		deliver(c)
	}
	return nil
}

// Start delivers changes journaled after this call. Earlier entries are
// history and are not replayed.
func (j *JournalTransport) Start(ctx context.Context, deliver func(cms.Change)) error {
	head, err := j.journal.LatestChangeID(ctx)
	if err != nil {
		return fmt.Errorf("reading change journal: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	j.mu.Lock()
	j.deliver = deliver
	j.last = head
	j.cancel = cancel
	j.done = done
	j.mu.Unlock()

	go j.run(ctx, done)
	return nil
}

func (j *JournalTransport) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	pruned := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := j.poll(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("change journal poll failed", "error", err)
		}
		if time.Since(pruned) >= journalRetention {
			pruned = time.Now()
			if _, err := j.journal.PruneChanges(ctx, pruned.Add(-journalRetention)); err != nil && ctx.Err() == nil {
				j.logger.Warn("change journal prune failed", "error", err)
			}
		}
	}
}

// poll delivers every entry past the last one seen.
func (j *JournalTransport) poll(ctx context.Context) error {
	for {
		j.mu.Lock()
		after := j.last
		j.mu.Unlock()

		entries, err := j.journal.ChangesSince(ctx, after, journalBatch)
		if err != nil {
			return err
		}
		for _, e := range entries {
			j.mu.Lock()
			j.last = e.ID
			_, mine := j.own[e.ID]
			delete(j.own, e.ID)
			deliver := j.deliver
			j.mu.Unlock()

			if mine || deliver == nil {
				continue
			}
			if _, err := cms.ParseTable(string(e.Change.Table)); err != nil {
				j.logger.Warn("journaled change for unknown table", "id", e.ID, "table", e.Change.Table)
				continue
			}
			deliver(e.Change)
		}
		if len(entries) < journalBatch {
			return nil
		}
	}
}

// Close stops the poller and waits for it to exit.
func (j *JournalTransport) Close() error {
	j.mu.Lock()
	j.deliver = nil
	cancel, done := j.cancel, j.done
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

package cms

import (
	"context"
	"crypto/rand"
	"io"
)

// Confirmation is the explicit go-ahead required by destructive actions.
type Confirmation bool

const (
	Unconfirmed Confirmation = false
	Confirmed   Confirmation = true
)

// Service coordinates the object store, the metadata store and the sync
// bus. Create and delete sequences run strictly in order; none of them are
// retried.
type Service struct {
	db       Database
	store    ObjectStore
	notifier Notifier
	sessions SessionStore
	logger   Logger
	clock    Clock
	ids      IDGenerator
	recorder Recorder
	random   io.Reader
}

// NewService creates a Service. A nil notifier drops change notifications;
// a nil session store disables visit recording.
func NewService(db Database, store ObjectStore, notifier Notifier, sessions SessionStore, logger Logger, clock Clock, ids IDGenerator) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = NopLogger{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if ids == nil {
		ids = UUIDs{}
	}
	return &Service{
		db:       db,
		store:    store,
		notifier: notifier,
		sessions: sessions,
		logger:   logger,
		clock:    clock,
		ids:      ids,
		recorder: NopRecorder{},
		random:   rand.Reader,
	}
}

// SetRecorder installs a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = NopRecorder{}
	}
	s.recorder = r
}

// notify publishes a change. Delivery failures never fail the mutation that
// triggered them: the data is committed and readers catch up on their next
// read.
func (s *Service) notify(ctx context.Context, table Table, op ChangeOp) {
	c := Change{Table: table, Op: op, At: s.clock.Now()}
	if err := s.notifier.Publish(ctx, c); err != nil {
		s.logger.Warn("change notification failed", "table", table, "op", op, "error", err)
	}
}

// removeBlob deletes path without letting cancellation of ctx skip it.
func (s *Service) removeBlob(ctx context.Context, path string) *OrphanedBlob {
	if err := s.store.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("orphaned blob", "path", path, "error", err)
		return &OrphanedBlob{Path: path, Err: err}
	}
	return nil
}

package testutil

import (
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/session"
)

// Harness bundles a Service with the test doubles behind it.
type Harness struct {
	Service  *cms.Service
	DB       *FaultyDatabase
	Store    *FaultyObjectStore
	Notifier *RecordingNotifier
	Sessions *session.MemoryStore
	Logger   *RecordingLogger
	Clock    *StubClock
}

// NewHarness builds a Service over an in-memory database, a fault-injecting
// object store and a recording notifier, all pinned to FixedClock.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	clock := FixedClock()
	h := &Harness{
		DB:       NewFaultyDatabase(NewTestDatabase(t)),
		Store:    NewFaultyObjectStore(clock),
		Notifier: &RecordingNotifier{},
		Sessions: session.NewMemoryStore(24*time.Hour, clock),
		Logger:   &RecordingLogger{},
		Clock:    clock,
	}
	h.Service = cms.NewService(h.DB, h.Store, h.Notifier, h.Sessions, h.Logger, clock, NewStubIDGenerator())
	return h
}

// Recorder counts lifecycle events.
type Recorder struct {
	Created, Failed, Deleted, Orphans, Visits int
}

var _ cms.Recorder = (*Recorder)(nil)

func (r *Recorder) AssetCreated(cms.AssetKind)               { r.Created++ }
func (r *Recorder) AssetFailed(cms.AssetKind, cms.ErrorKind) { r.Failed++ }
func (r *Recorder) AssetDeleted(cms.AssetKind)               { r.Deleted++ }
func (r *Recorder) OrphanedBlobs(n int)                      { r.Orphans += n }
func (r *Recorder) VisitCounted()                            { r.Visits++ }

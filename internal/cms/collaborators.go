package cms

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used by the service layer. Args are
// slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// Clock abstracts time so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator mints identifiers for new rows.
type IDGenerator interface {
	New() string
}

// UUIDs mints random UUIDv4 identifiers.
type UUIDs struct{}

func (UUIDs) New() string { return uuid.NewString() }

// ChangeOp names the kind of committed mutation.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change signals that a table was mutated. It carries no row payload:
// consumers re-read the table.
type Change struct {
	Table Table     `json:"table"`
	Op    ChangeOp  `json:"op"`
	At    time.Time `json:"at"`
}

// Notifier publishes committed changes to the content sync bus.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
}

// NopNotifier drops every change.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Change) error { return nil }

// SessionStore holds the per-session "already counted" flag.
type SessionStore interface {
	// MarkCounted sets the flag for sessionID and reports whether this call
	// was the one that set it. It must be an atomic test-and-set.
	MarkCounted(ctx context.Context, sessionID string) (bool, error)

	// ClearCounted removes the flag so a later visit may count again.
	ClearCounted(ctx context.Context, sessionID string) error
}

// Recorder receives lifecycle events for metrics.
type Recorder interface {
	AssetCreated(kind AssetKind)
	AssetFailed(kind AssetKind, reason ErrorKind)
	AssetDeleted(kind AssetKind)
	OrphanedBlobs(n int)
	VisitCounted()
}

// NopRecorder ignores all events.
type NopRecorder struct{}

func (NopRecorder) AssetCreated(AssetKind)           {}
func (NopRecorder) AssetFailed(AssetKind, ErrorKind) {}
func (NopRecorder) AssetDeleted(AssetKind)           {}
func (NopRecorder) OrphanedBlobs(int)                {}
func (NopRecorder) VisitCounted()                    {}

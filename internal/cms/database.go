package cms

import (
	"context"
	"time"
)

// Database is the metadata store. Lookups of a missing row return an error
// wrapping ErrNotFound.
type Database interface {
	// Events

	CreateEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context) ([]*Event, error)

	// DeleteEventCascade removes the event and every asset row it owns in a
	// single transaction. It returns the owned assets as read inside that
	// transaction, before anything was deleted.
	DeleteEventCascade(ctx context.Context, id string) ([]*Asset, error)

	// Assets

	InsertAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, kind AssetKind, id string) (*Asset, error)
	// ListAssets returns assets of kind, newest first. A non-empty eventID
	// restricts the result to that event.
	ListAssets(ctx context.Context, kind AssetKind, eventID string) ([]*Asset, error)
	DeleteAsset(ctx context.Context, kind AssetKind, id string) error

	// Content records

	// SaveContent inserts rec when no row with rec.ID exists, otherwise
	// replaces it.
	SaveContent(ctx context.Context, rec *ContentRecord) error
	GetContent(ctx context.Context, table Table, id string) (*ContentRecord, error)
	// ListContent orders by row_position, column_number, display_order, id.
	ListContent(ctx context.Context, table Table, activeOnly bool) ([]*ContentRecord, error)
	DeleteContent(ctx context.Context, table Table, id string) error
	// UpdateDisplayOrders applies every id -> display_order assignment in
	// one transaction.
	UpdateDisplayOrders(ctx context.Context, table Table, orders map[string]int, at time.Time) error
	// NextDisplayOrder returns max(display_order)+1 within the scope, or 1.
	NextDisplayOrder(ctx context.Context, table Table, row, column int) (int, error)

	// Site counter

	// IncrementVisitorCount atomically adds one and returns the new count.
	IncrementVisitorCount(ctx context.Context, at time.Time) (int64, error)
	GetSiteCounter(ctx context.Context) (*SiteCounter, error)
	ResetVisitorCount(ctx context.Context, at time.Time) error
	TouchLastUpdated(ctx context.Context, at time.Time) error

	// Statistics

	// ListStatRows returns rows ordered by the series key, descending.
	ListStatRows(ctx context.Context, schema *SeriesSchema) ([]*StatRow, error)
	// InsertStatRow fails with a duplicate-key error if the key exists.
	InsertStatRow(ctx context.Context, schema *SeriesSchema, row *StatRow) error
	// UpsertStatRow inserts or replaces the row with the same key.
	UpsertStatRow(ctx context.Context, schema *SeriesSchema, row *StatRow) error
	// UpdateStatRow replaces the surrogate-keyed row with row.ID. A
	// missing row is ErrNotFound.
	UpdateStatRow(ctx context.Context, schema *SeriesSchema, row *StatRow) error
	DeleteStatRow(ctx context.Context, schema *SeriesSchema, key string) error

	// Operations

	CreateOperation(ctx context.Context, name, parameters string, at time.Time) (int64, error)
	FinishOperation(ctx context.Context, id int64, status string, at time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*Operation, error)

	// Lifecycle

	// CheckMigrations reports whether the schema is at the latest version.
	CheckMigrations() error
	// BackupTo writes a consistent copy of the store to a local file.
	BackupTo(ctx context.Context, path string) error
	Close() error
}

package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/database"
)

// NewTestDatabase creates a migrated in-memory SQLite metadata store. It is
// closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ErrInjected is returned by fault-injecting test doubles.
var ErrInjected = errors.New("injected failure")

// FaultyDatabase wraps a Database, counts calls to the methods the services
// write through, and fails them on demand.
type FaultyDatabase struct {
	cms.Database

	mu                sync.Mutex
	calls             map[string]int
	FailInsertAsset   bool
	FailDeleteAsset   bool
	FailCascade       bool
	FailIncrement     bool
	FailSaveContent   bool
	FailUpsertStatRow bool
}

var _ cms.Database = (*FaultyDatabase)(nil)

func NewFaultyDatabase(db cms.Database) *FaultyDatabase {
	return &FaultyDatabase{Database: db, calls: make(map[string]int)}
}

func (f *FaultyDatabase) hit(name string, fail bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if fail {
		return ErrInjected
	}
	return nil
}

// Calls returns how many times method was invoked.
func (f *FaultyDatabase) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of counted calls across all methods.
func (f *FaultyDatabase) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FaultyDatabase) GetEvent(ctx context.Context, id string) (*cms.Event, error) {
	if err := f.hit("GetEvent", false); err != nil {
		return nil, err
	}
	return f.Database.GetEvent(ctx, id)
}

func (f *FaultyDatabase) CreateEvent(ctx context.Context, ev *cms.Event) error {
	if err := f.hit("CreateEvent", false); err != nil {
		return err
	}
	return f.Database.CreateEvent(ctx, ev)
}

func (f *FaultyDatabase) InsertAsset(ctx context.Context, a *cms.Asset) error {
	if err := f.hit("InsertAsset", f.FailInsertAsset); err != nil {
		return err
	}
	return f.Database.InsertAsset(ctx, a)
}

func (f *FaultyDatabase) DeleteAsset(ctx context.Context, kind cms.AssetKind, id string) error {
	if err := f.hit("DeleteAsset", f.FailDeleteAsset); err != nil {
		return err
	}
	return f.Database.DeleteAsset(ctx, kind, id)
}

func (f *FaultyDatabase) DeleteEventCascade(ctx context.Context, id string) ([]*cms.Asset, error) {
	if err := f.hit("DeleteEventCascade", f.FailCascade); err != nil {
		return nil, err
	}
	return f.Database.DeleteEventCascade(ctx, id)
}

func (f *FaultyDatabase) IncrementVisitorCount(ctx context.Context, at time.Time) (int64, error) {
	if err := f.hit("IncrementVisitorCount", f.FailIncrement); err != nil {
		return 0, err
	}
	return f.Database.IncrementVisitorCount(ctx, at)
}

func (f *FaultyDatabase) SaveContent(ctx context.Context, rec *cms.ContentRecord) error {
	if err := f.hit("SaveContent", f.FailSaveContent); err != nil {
		return err
	}
	return f.Database.SaveContent(ctx, rec)
}

func (f *FaultyDatabase) InsertStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	if err := f.hit("InsertStatRow", false); err != nil {
		return err
	}
	return f.Database.InsertStatRow(ctx, schema, row)
}

func (f *FaultyDatabase) UpdateStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	if err := f.hit("UpdateStatRow", false); err != nil {
		return err
	}
	return f.Database.UpdateStatRow(ctx, schema, row)
}

func (f *FaultyDatabase) UpsertStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	if err := f.hit("UpsertStatRow", f.FailUpsertStatRow); err != nil {
		return err
	}
	return f.Database.UpsertStatRow(ctx, schema, row)
}

package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/database/migrations"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a migrated in-memory database.
func newTestDB(t *testing.T) *SQLDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateEvent(t *testing.T, db *SQLDatabase, id string) {
	t.Helper()
	if err := db.CreateEvent(context.Background(), &cms.Event{ID: id, Name: "Event " + id, CreatedAt: t0}); err != nil {
		t.Fatalf("CreateEvent(%s) error = %v", id, err)
	}
}

func asset(kind cms.AssetKind, id, eventID string) *cms.Asset {
	path := kind.Policy().Prefix + "/" + id + ".jpg"
	return &cms.Asset{
		ID:          id,
		Kind:        kind,
		EventID:     eventID,
		URL:         "https://cdn.example/" + path,
		Path:        path,
		FileName:    id + ".jpg",
		FileSize:    1024,
		ContentType: "image/jpeg",
		Title:       cms.Title{EN: "Title " + id},
		UploadedAt:  t0,
	}
}

func TestSQLDatabase_Events(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips optional date", func(t *testing.T) {
		db := newTestDB(t)
		date := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
		ev := &cms.Event{ID: "e1", Name: "Health camp", Description: "Annual", Date: &date, CreatedAt: t0}
		if err := db.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}

		got, err := db.GetEvent(ctx, "e1")
		if err != nil {
			t.Fatalf("GetEvent() error = %v", err)
		}
		if got.Name != "Health camp" || got.Description != "Annual" {
			t.Errorf("GetEvent() = %+v", got)
		}
		if got.Date == nil || !got.Date.Equal(date) {
			t.Errorf("Date = %v, want %v", got.Date, date)
		}
	})

	t.Run("missing event is not found", func(t *testing.T) {
		db := newTestDB(t)
		if _, err := db.GetEvent(ctx, "nope"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("GetEvent() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("lists newest first", func(t *testing.T) {
		db := newTestDB(t)
		db.CreateEvent(ctx, &cms.Event{ID: "old", Name: "old", CreatedAt: t0})
		db.CreateEvent(ctx, &cms.Event{ID: "new", Name: "new", CreatedAt: t0.Add(time.Hour)})

		got, err := db.ListEvents(ctx)
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != "new" {
			t.Errorf("ListEvents() order = %v", got)
		}
	})
}

func TestSQLDatabase_DeleteEventCascade(t *testing.T) {
	ctx := context.Background()

	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("removes %d owned asset rows", n), func(t *testing.T) {
			db := newTestDB(t)
			mustCreateEvent(t, db, "e1")
			mustCreateEvent(t, db, "e2")
			for i := 0; i < n; i++ {
				if err := db.InsertAsset(ctx, asset(cms.AssetGallery, "g"+string(rune('a'+i)), "e1")); err != nil {
					t.Fatalf("InsertAsset() error = %v", err)
				}
			}
			db.InsertAsset(ctx, asset(cms.AssetGallery, "other", "e2"))
			db.InsertAsset(ctx, asset(cms.AssetSlide, "slide", ""))

			owned, err := db.DeleteEventCascade(ctx, "e1")
			if err != nil {
				t.Fatalf("DeleteEventCascade() error = %v", err)
			}
			if len(owned) != n {
				t.Errorf("DeleteEventCascade() returned %d assets, want %d", len(owned), n)
			}

			left, _ := db.ListAssets(ctx, cms.AssetGallery, "e1")
			if len(left) != 0 {
				t.Errorf("%d asset rows still reference e1", len(left))
			}
			if _, err := db.GetEvent(ctx, "e1"); !errors.Is(err, cms.ErrNotFound) {
				t.Errorf("event row still present: %v", err)
			}
			if others, _ := db.ListAssets(ctx, cms.AssetGallery, "e2"); len(others) != 1 {
				t.Errorf("assets of another event were touched")
			}
			if slides, _ := db.ListAssets(ctx, cms.AssetSlide, ""); len(slides) != 1 {
				t.Errorf("ungrouped assets were touched")
			}
		})
	}

	t.Run("missing event is not found", func(t *testing.T) {
		db := newTestDB(t)
		if _, err := db.DeleteEventCascade(ctx, "ghost"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("DeleteEventCascade() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLDatabase_Assets(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips titles and grouping", func(t *testing.T) {
		db := newTestDB(t)
		mustCreateEvent(t, db, "e1")
		a := asset(cms.AssetGallery, "a1", "e1")
		a.Title = cms.Title{EN: "Camp", MR: "शिबिर"}
		if err := db.InsertAsset(ctx, a); err != nil {
			t.Fatalf("InsertAsset() error = %v", err)
		}

		got, err := db.GetAsset(ctx, cms.AssetGallery, "a1")
		if err != nil {
			t.Fatalf("GetAsset() error = %v", err)
		}
		if got.EventID != "e1" || got.Title != a.Title || got.Path != a.Path || got.Kind != cms.AssetGallery {
			t.Errorf("GetAsset() = %+v, want %+v", got, a)
		}
	})

	t.Run("rejects asset for unknown event", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.InsertAsset(ctx, asset(cms.AssetGallery, "a1", "missing")); err == nil {
			t.Error("InsertAsset() expected foreign key error")
		}
	})

	t.Run("rejects duplicate path", func(t *testing.T) {
		db := newTestDB(t)
		a := asset(cms.AssetSlide, "s1", "")
		db.InsertAsset(ctx, a)
		dup := asset(cms.AssetSlide, "s2", "")
		dup.Path = a.Path
		if err := db.InsertAsset(ctx, dup); err == nil {
			t.Error("InsertAsset() expected unique path error")
		}
	})

	t.Run("delete missing asset is not found", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.DeleteAsset(ctx, cms.AssetReport, "nope"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("DeleteAsset() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLDatabase_Content(t *testing.T) {
	ctx := context.Background()

	save := func(t *testing.T, db *SQLDatabase, id string, active bool, row, order int) {
		t.Helper()
		rec := &cms.ContentRecord{
			ID: id, Table: cms.TableOfficials, Fields: map[string]any{"name": id},
			IsActive: active, RowPosition: row, DisplayOrder: order, CreatedAt: t0, UpdatedAt: t0,
		}
		if err := db.SaveContent(ctx, rec); err != nil {
			t.Fatalf("SaveContent(%s) error = %v", id, err)
		}
	}

	t.Run("lists in scope order and filters inactive", func(t *testing.T) {
		db := newTestDB(t)
		save(t, db, "c", true, 1, 1)
		save(t, db, "b", true, 0, 2)
		save(t, db, "a", true, 0, 1)
		save(t, db, "hidden", false, 0, 3)

		all, _ := db.ListContent(ctx, cms.TableOfficials, false)
		active, _ := db.ListContent(ctx, cms.TableOfficials, true)
		if len(all) != 4 || len(active) != 3 {
			t.Fatalf("len(all) = %d, len(active) = %d", len(all), len(active))
		}
		want := []string{"a", "b", "c"}
		for i, id := range want {
			if active[i].ID != id {
				t.Errorf("active[%d] = %s, want %s", i, active[i].ID, id)
			}
		}
		if active[0].Fields["name"] != "a" {
			t.Errorf("Fields not decoded: %v", active[0].Fields)
		}
	})

	t.Run("save updates in place", func(t *testing.T) {
		db := newTestDB(t)
		save(t, db, "a", true, 0, 1)
		save(t, db, "a", false, 0, 5)

		got, err := db.GetContent(ctx, cms.TableOfficials, "a")
		if err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if got.IsActive || got.DisplayOrder != 5 {
			t.Errorf("GetContent() = %+v", got)
		}
	})

	t.Run("next display order is per scope", func(t *testing.T) {
		db := newTestDB(t)
		save(t, db, "a", true, 0, 4)
		save(t, db, "b", true, 1, 9)

		if got, _ := db.NextDisplayOrder(ctx, cms.TableOfficials, 0, 0); got != 5 {
			t.Errorf("NextDisplayOrder(row 0) = %d, want 5", got)
		}
		if got, _ := db.NextDisplayOrder(ctx, cms.TableOfficials, 2, 0); got != 1 {
			t.Errorf("NextDisplayOrder(empty row) = %d, want 1", got)
		}
	})

	t.Run("display order update is all or nothing", func(t *testing.T) {
		db := newTestDB(t)
		save(t, db, "a", true, 0, 1)
		save(t, db, "b", true, 0, 2)

		err := db.UpdateDisplayOrders(ctx, cms.TableOfficials, map[string]int{"a": 2, "b": 1, "ghost": 3}, t0)
		if !errors.Is(err, cms.ErrNotFound) {
			t.Fatalf("UpdateDisplayOrders() error = %v, want ErrNotFound", err)
		}
		a, _ := db.GetContent(ctx, cms.TableOfficials, "a")
		if a.DisplayOrder != 1 {
			t.Errorf("partial update committed: a.DisplayOrder = %d", a.DisplayOrder)
		}
	})

	t.Run("rejects non-content table", func(t *testing.T) {
		db := newTestDB(t)
		if _, err := db.ListContent(ctx, cms.TableEvents, false); err == nil {
			t.Error("ListContent(events) expected error")
		}
	})
}

func TestSQLDatabase_SiteCounter(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		db := newTestDB(t)
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := db.IncrementVisitorCount(ctx, t0); err != nil {
					t.Errorf("IncrementVisitorCount() error = %v", err)
				}
			}()
		}
		wg.Wait()

		c, err := db.GetSiteCounter(ctx)
		if err != nil {
			t.Fatalf("GetSiteCounter() error = %v", err)
		}
		if c.VisitorCount != n {
			t.Errorf("VisitorCount = %d, want %d", c.VisitorCount, n)
		}
	})

	t.Run("reset and touch", func(t *testing.T) {
		db := newTestDB(t)
		db.IncrementVisitorCount(ctx, t0)
		later := t0.Add(time.Hour)
		if err := db.ResetVisitorCount(ctx, later); err != nil {
			t.Fatalf("ResetVisitorCount() error = %v", err)
		}
		c, _ := db.GetSiteCounter(ctx)
		if c.VisitorCount != 0 || !c.LastUpdated.Equal(later) {
			t.Errorf("after reset = %+v", c)
		}

		evenLater := later.Add(time.Hour)
		db.TouchLastUpdated(ctx, evenLater)
		c, _ = db.GetSiteCounter(ctx)
		if c.VisitorCount != 0 || !c.LastUpdated.Equal(evenLater) {
			t.Errorf("after touch = %+v", c)
		}
	})
}

func TestSQLDatabase_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("natural key upsert", func(t *testing.T) {
		db := newTestDB(t)
		schema, _ := cms.ParseSeries("death_rates")
		db.UpsertStatRow(ctx, schema, &cms.StatRow{Values: map[string]any{"year": int64(2019), "india_srs": 6.0}})
		db.UpsertStatRow(ctx, schema, &cms.StatRow{Values: map[string]any{"year": int64(2020), "india_srs": 6.2}})
		if err := db.UpsertStatRow(ctx, schema, &cms.StatRow{Values: map[string]any{"year": int64(2019), "india_srs": 5.9}}); err != nil {
			t.Fatalf("UpsertStatRow() error = %v", err)
		}

		rows, err := db.ListStatRows(ctx, schema)
		if err != nil {
			t.Fatalf("ListStatRows() error = %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("len(rows) = %d, want 2", len(rows))
		}
		if rows[0].Values["year"] != int64(2020) {
			t.Errorf("rows not ordered by year desc: %v", rows[0].Values)
		}
		if rows[1].Values["india_srs"] != 5.9 {
			t.Errorf("upsert did not replace value: %v", rows[1].Values)
		}
		if _, ok := rows[1].Values["maharashtra_srs"]; ok {
			t.Errorf("NULL column should be absent: %v", rows[1].Values)
		}

		if err := db.DeleteStatRow(ctx, schema, "2019"); err != nil {
			t.Fatalf("DeleteStatRow() error = %v", err)
		}
		if err := db.DeleteStatRow(ctx, schema, "2019"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("second DeleteStatRow() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("surrogate key insert rejects duplicate natural value", func(t *testing.T) {
		db := newTestDB(t)
		schema, _ := cms.ParseSeries("sex_ratio_sindhudurg_hmis")
		row := &cms.StatRow{ID: "r1", Values: map[string]any{"year_range": "2017-2018", "sex_ratio": 925.0}}
		if err := db.InsertStatRow(ctx, schema, row); err != nil {
			t.Fatalf("InsertStatRow() error = %v", err)
		}
		dup := &cms.StatRow{ID: "r2", Values: map[string]any{"year_range": "2017-2018"}}
		if err := db.InsertStatRow(ctx, schema, dup); err == nil {
			t.Error("InsertStatRow() expected duplicate key error")
		}

		rows, _ := db.ListStatRows(ctx, schema)
		if len(rows) != 1 || rows[0].ID != "r1" {
			t.Errorf("ListStatRows() = %+v", rows)
		}

		upd := &cms.StatRow{ID: "r1", Values: map[string]any{"year_range": "2017-2018", "sex_ratio": 931.0}}
		if err := db.UpdateStatRow(ctx, schema, upd); err != nil {
			t.Fatalf("UpdateStatRow() error = %v", err)
		}
		ghost := &cms.StatRow{ID: "r9", Values: map[string]any{"year_range": "2019-2020"}}
		if err := db.UpdateStatRow(ctx, schema, ghost); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("UpdateStatRow(missing) error = %v, want ErrNotFound", err)
		}
		if rows, _ := db.ListStatRows(ctx, schema); len(rows) != 1 || rows[0].Values["sex_ratio"] != 931.0 {
			t.Errorf("after update ListStatRows() = %+v", rows)
		}
		if err := db.DeleteStatRow(ctx, schema, "r1"); err != nil {
			t.Errorf("DeleteStatRow() error = %v", err)
		}
	})
}

func TestSQLDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	id1, err := db.CreateOperation(ctx, "DeleteEvent", "e1", t0)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	id2, _ := db.CreateOperation(ctx, "CreateAsset", "gallery", t0.Add(time.Minute))
	if err := db.FinishOperation(ctx, id1, cms.StatusSuccess, t0.Add(time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 || ops[0].ID != id2 {
		t.Fatalf("ListOperations() = %+v", ops)
	}
	if ops[0].Status != cms.StatusRunning || ops[0].FinishedAt != nil {
		t.Errorf("unfinished operation = %+v", ops[0])
	}
	if ops[1].Status != cms.StatusSuccess || ops[1].FinishedAt == nil {
		t.Errorf("finished operation = %+v", ops[1])
	}
}

func TestSQLDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	mustCreateEvent(t, db, "e1")

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := db.BackupTo(context.Background(), dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Fatalf("snapshot not written: %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer copyDB.Close()
	if _, err := copyDB.GetEvent(context.Background(), "e1"); err != nil {
		t.Errorf("snapshot missing event: %v", err)
	}
}

func TestSQLDatabase_Rebind(t *testing.T) {
	tests := []struct {
		dialect migrations.Dialect
		want    string
	}{
		{migrations.SQLite, "UPDATE t SET a = ? WHERE id = ?"},
		{migrations.Postgres, "UPDATE t SET a = $1 WHERE id = $2"},
	}
	for _, tt := range tests {
		s := &SQLDatabase{dialect: tt.dialect}
		if got := s.rebind("UPDATE t SET a = ? WHERE id = ?"); got != tt.want {
			t.Errorf("rebind(%s) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

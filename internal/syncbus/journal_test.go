package syncbus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/database"
)

const pollInterval = 20 * time.Millisecond

// openJournal opens the store at path the way a separate process would.
func openJournal(t *testing.T, path string) *database.SQLDatabase {
	t.Helper()
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sharedJournal(t *testing.T) (string, *database.SQLDatabase) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cms.db")
	db := openJournal(t, path)
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return path, db
}

func journalHub(t *testing.T, journal ChangeJournal) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(NewJournalTransport(journal, pollInterval, nil), 0, nil)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		h.Close()
		cancel()
	})
	return h
}

func TestJournalTransport_CrossProcess(t *testing.T) {
	path, dbA := sharedJournal(t)
	dbB := openJournal(t, path)

	writer := journalHub(t, dbA)
	server := journalHub(t, dbB)

	got := make(chan cms.Change, 4)
	if _, err := server.Subscribe(cms.TableOfficials, func(c cms.Change) { got <- c }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := change(cms.TableOfficials, cms.ChangeUpdate)
	if err := writer.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case c := <-got:
		if c.Table != want.Table || c.Op != want.Op || !c.At.Equal(want.At) {
			t.Errorf("delivered %+v, want %+v", c, want)
		}
	case <-time.After(waitTimeout):
		t.Fatal("change never reached the other process")
	}
}

func TestJournalTransport_LocalDeliveredOnce(t *testing.T) {
	_, db := sharedJournal(t)
	h := journalHub(t, db)

	got := make(chan cms.Change, 4)
	if _, err := h.Subscribe(cms.TableSchemes, func(c cms.Change) { got <- c }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := h.Publish(context.Background(), change(cms.TableSchemes, cms.ChangeInsert)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-got:
	case <-time.After(waitTimeout):
		t.Fatal("local change not delivered")
	}
	select {
	case c := <-got:
		t.Errorf("local change delivered again by the poller: %+v", c)
	case <-time.After(10 * pollInterval):
	}
}

func TestJournalTransport_SkipsHistory(t *testing.T) {
	_, db := sharedJournal(t)
	if _, err := db.AppendChange(context.Background(), change(cms.TableNews, cms.ChangeDelete)); err != nil {
		t.Fatalf("AppendChange() error = %v", err)
	}

	h := journalHub(t, db)
	got := make(chan cms.Change, 1)
	if _, err := h.Subscribe(cms.TableNews, func(c cms.Change) { got <- c }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case c := <-got:
		t.Errorf("change journaled before Start was replayed: %+v", c)
	case <-time.After(10 * pollInterval):
	}
}

func TestJournalTransport_CloseStopsPolling(t *testing.T) {
	path, dbA := sharedJournal(t)
	dbB := openJournal(t, path)

	delivered := make(chan cms.Change, 1)
	tr := NewJournalTransport(dbB, pollInterval, nil)
	if err := tr.Start(context.Background(), func(c cms.Change) { delivered <- c }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := dbA.AppendChange(context.Background(), change(cms.TableNews, cms.ChangeInsert)); err != nil {
		t.Fatalf("AppendChange() error = %v", err)
	}
	select {
	case c := <-delivered:
		t.Errorf("closed transport delivered %+v", c)
	case <-time.After(10 * pollInterval):
	}
}

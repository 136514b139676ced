package publicview

import (
	"context"
	"sync"
	"testing"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/objectstore"
	"cms-go/internal/session"
	"cms-go/internal/syncbus"
	"cms-go/internal/testutil"
)

type countingStats struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *countingStats) CacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
}

func (c *countingStats) CacheMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
}

func (c *countingStats) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

type fixture struct {
	hub    *syncbus.Hub
	svc    *cms.Service // publishes to hub
	silent *cms.Service // same database, publishes nothing
	reader *Reader
	stats  *countingStats
}

func newFixture(t *testing.T, maxSubs int) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := syncbus.NewHub(syncbus.NewMemoryTransport(), maxSubs, nil)
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t)
	store := objectstore.NewMemoryStore("", clock)
	sessions := session.NewMemoryStore(time.Hour, clock)

	f := &fixture{
		hub:    hub,
		svc:    cms.NewService(db, store, hub, sessions, nil, clock, testutil.NewStubIDGenerator()),
		silent: cms.NewService(db, store, nil, sessions, nil, clock, cms.UUIDs{}),
		stats:  &countingStats{},
	}
	f.reader = NewReader(f.svc, hub, 16, time.Minute, nil)
	f.reader.SetStats(f.stats)

	t.Cleanup(func() {
		f.reader.Close()
		cancel()
		hub.Close()
	})
	return f
}

func saveScheme(t *testing.T, svc *cms.Service, name string) {
	t.Helper()
	_, err := svc.SaveContent(context.Background(), cms.TableSchemes, cms.ContentInput{
		Fields:   map[string]any{"name": name},
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}
}

func schemeCount(t *testing.T, r *Reader) int {
	t.Helper()
	recs, err := r.Content(context.Background(), cms.TableSchemes)
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	return len(recs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReader_ServesFromCache(t *testing.T) {
	f := newFixture(t, 0)
	saveScheme(t, f.silent, "Ladki Bahin")

	if got := schemeCount(t, f.reader); got != 1 {
		t.Fatalf("first read = %d records, want 1", got)
	}

	// Written without a notification, so the cached result must stand.
	saveScheme(t, f.silent, "Annapurna")
	if got := schemeCount(t, f.reader); got != 1 {
		t.Errorf("cached read = %d records, want 1", got)
	}

	hits, misses := f.stats.counts()
	if hits != 1 || misses != 1 {
		t.Errorf("hits, misses = %d, %d; want 1, 1", hits, misses)
	}
	if f.hub.Active() != 1 {
		t.Errorf("Active() = %d, want one subscription for the table", f.hub.Active())
	}
}

func TestReader_ChangeInvalidates(t *testing.T) {
	f := newFixture(t, 0)
	saveScheme(t, f.svc, "Ladki Bahin")

	if got := schemeCount(t, f.reader); got != 1 {
		t.Fatalf("first read = %d records, want 1", got)
	}

	saveScheme(t, f.svc, "Annapurna")
	waitFor(t, func() bool { return schemeCount(t, f.reader) == 2 })
}

func TestReader_ChangeLeavesOtherTablesCached(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	if _, err := f.silent.CreateEvent(ctx, cms.EventInput{Name: "Health camp"}); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if _, err := f.reader.Events(ctx); err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	schemeCount(t, f.reader)

	saveScheme(t, f.svc, "Annapurna")
	waitFor(t, func() bool { return schemeCount(t, f.reader) == 1 })

	before, _ := f.stats.counts()
	if _, err := f.reader.Events(ctx); err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if after, _ := f.stats.counts(); after != before+1 {
		t.Errorf("events read after a schemes change was not a cache hit")
	}
}

func TestReader_UncachedWhenSubscriptionsExhausted(t *testing.T) {
	f := newFixture(t, 1)
	hold, err := f.hub.Subscribe(cms.TableOfficials, func(cms.Change) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer hold.Unsubscribe()

	saveScheme(t, f.silent, "Ladki Bahin")
	if got := schemeCount(t, f.reader); got != 1 {
		t.Fatalf("first read = %d records, want 1", got)
	}

	saveScheme(t, f.silent, "Annapurna")
	if got := schemeCount(t, f.reader); got != 2 {
		t.Errorf("read = %d records, want 2 (uncached)", got)
	}
	if hits, _ := f.stats.counts(); hits != 0 {
		t.Errorf("hits = %d, want 0", hits)
	}
}

func TestReader_CloseReleasesSubscriptions(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	schemeCount(t, f.reader)
	if _, err := f.reader.Counter(ctx); err != nil {
		t.Fatalf("Counter() error = %v", err)
	}
	if f.hub.Active() != 2 {
		t.Fatalf("Active() = %d, want 2", f.hub.Active())
	}

	f.reader.Close()
	if f.hub.Active() != 0 {
		t.Errorf("Active() after Close = %d, want 0", f.hub.Active())
	}
}

func TestReader_AssetsKeyedByEvent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, cms.EventInput{Name: "Health camp"})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	all, err := f.reader.Assets(ctx, cms.AssetGallery, "")
	if err != nil {
		t.Fatalf("Assets() error = %v", err)
	}
	forEvent, err := f.reader.Assets(ctx, cms.AssetGallery, ev.ID)
	if err != nil {
		t.Fatalf("Assets() error = %v", err)
	}
	if len(all) != 0 || len(forEvent) != 0 {
		t.Errorf("Assets() = %d, %d; want empty", len(all), len(forEvent))
	}
	if _, misses := f.stats.counts(); misses != 2 {
		t.Errorf("misses = %d, want separate entries per event", misses)
	}
}

// Package publicview serves the public site's reads through a bounded
// cache that is invalidated by content sync bus notifications.
package publicview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"cms-go/internal/cms"
	"cms-go/internal/syncbus"
)

// Subscriber is the part of the sync bus the reader needs.
type Subscriber interface {
	Subscribe(table cms.Table, onChange func(cms.Change)) (*syncbus.Subscription, error)
	Unsubscribe(s *syncbus.Subscription)
}

// CacheStats receives hit/miss events.
type CacheStats interface {
	CacheHit()
	CacheMiss()
}

type nopStats struct{}

func (nopStats) CacheHit()  {}
func (nopStats) CacheMiss() {}

// Reader answers public reads. Each cached table holds one bus
// subscription; a change to the table drops every cached entry for it.
type Reader struct {
	svc    *cms.Service
	bus    Subscriber
	cache  *expirable.LRU[string, any]
	logger cms.Logger
	stats  CacheStats

	mu       sync.Mutex
	watching map[cms.Table]*syncbus.Subscription
	gen      map[cms.Table]uint64
}

// NewReader creates a Reader caching up to size entries for at most ttl.
func NewReader(svc *cms.Service, bus Subscriber, size int, ttl time.Duration, logger cms.Logger) *Reader {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = cms.NopLogger{}
	}
	return &Reader{
		svc:      svc,
		bus:      bus,
		cache:    expirable.NewLRU[string, any](size, nil, ttl),
		logger:   logger,
		stats:    nopStats{},
		watching: make(map[cms.Table]*syncbus.Subscription),
		gen:      make(map[cms.Table]uint64),
	}
}

// SetStats installs a hit/miss recorder.
func (r *Reader) SetStats(s CacheStats) {
	if s != nil {
		r.stats = s
	}
}

// Content returns the active records of a content table in display order.
func (r *Reader) Content(ctx context.Context, table cms.Table) ([]*cms.ContentRecord, error) {
	return load(r, ctx, table, "", func() ([]*cms.ContentRecord, error) {
		return r.svc.ListContent(ctx, table, true)
	})
}

// Events returns every event, newest first.
func (r *Reader) Events(ctx context.Context) ([]*cms.Event, error) {
	return load(r, ctx, cms.TableEvents, "", func() ([]*cms.Event, error) {
		return r.svc.ListEvents(ctx)
	})
}

// Assets returns the assets of kind, optionally for one event.
func (r *Reader) Assets(ctx context.Context, kind cms.AssetKind, eventID string) ([]*cms.Asset, error) {
	return load(r, ctx, kind.Policy().Table, eventID, func() ([]*cms.Asset, error) {
		return r.svc.ListAssets(ctx, kind, eventID)
	})
}

// Counter returns the site counter.
func (r *Reader) Counter(ctx context.Context) (*cms.SiteCounter, error) {
	return load(r, ctx, cms.TableSiteStatistics, "", func() (*cms.SiteCounter, error) {
		return r.svc.CurrentCount(ctx)
	})
}

// Stats returns the rows of a statistics series.
func (r *Reader) Stats(ctx context.Context, schema *cms.SeriesSchema) ([]*cms.StatRow, error) {
	return load(r, ctx, schema.Series.Table(), "", func() ([]*cms.StatRow, error) {
		return r.svc.ListStatRows(ctx, schema)
	})
}

// load serves key from the cache or calls fetch. Results are only cached
// while the table is watched, and only if no change arrived during the
// fetch.
func load[T any](r *Reader, ctx context.Context, table cms.Table, variant string, fetch func() (T, error)) (T, error) {
	key := string(table) + ":" + variant
	if v, ok := r.cache.Get(key); ok {
		r.stats.CacheHit()
		return v.(T), nil
	}
	r.stats.CacheMiss()

	gen, watched := r.watch(table)
	v, err := fetch()
	if err != nil {
		return v, err
	}
	if watched {
		r.mu.Lock()
		if r.gen[table] == gen {
			r.cache.Add(key, v)
		}
		r.mu.Unlock()
	}
	return v, nil
}

// watch makes sure table has a bus subscription and returns its current
// generation. It reports false when no subscription could be taken.
func (r *Reader) watch(table cms.Table) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watching[table]; ok {
		return r.gen[table], true
	}
	sub, err := r.bus.Subscribe(table, func(cms.Change) { r.invalidate(table) })
	if err != nil {
		r.logger.Warn("public cache disabled for table", "table", table, "error", err)
		return 0, false
	}
	r.watching[table] = sub
	return r.gen[table], true
}

func (r *Reader) invalidate(table cms.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen[table]++

	prefix := string(table) + ":"
	for _, k := range r.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			r.cache.Remove(k)
		}
	}
	r.logger.Debug("public cache invalidated", "table", table)
}

// Close releases every subscription.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, sub := range r.watching {
		r.bus.Unsubscribe(sub)
		delete(r.watching, t)
	}
	r.cache.Purge()
}

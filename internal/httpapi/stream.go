package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/syncbus"
)

// streamEvent is the data of one SSE message: the full current contents
// of a table.
type streamEvent struct {
	Table cms.Table    `json:"table"`
	Op    cms.ChangeOp `json:"op,omitempty"`
	At    *time.Time   `json:"at,omitempty"`
	Rows  any          `json:"rows"`
}

// stream serves GET /api/stream?table=a,b as server-sent events. Each
// connection holds one bus subscription per table for as long as it is
// open. Every notification is answered with a fresh full read of the
// table; bursts are coalesced by the bus.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	tables, err := parseTables(r.URL.Query().Get("table"))
	if err != nil {
		writeRead(w, "open stream", nil, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	changes := make(chan cms.Change, len(tables))
	subs := make([]*syncbus.Subscription, 0, len(tables))
	defer func() {
		for _, s := range subs {
			h.bus.Unsubscribe(s)
		}
	}()
	for _, t := range tables {
		s, err := h.bus.Subscribe(t, func(c cms.Change) {
			select {
			case changes <- c:
			case <-ctx.Done():
			}
		})
		if err != nil {
			writeRead(w, "open stream", nil, err)
			return
		}
		subs = append(subs, s)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, t := range tables {
		if err := h.send(ctx, w, "snapshot", streamEvent{Table: t}); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream closed", "tables", len(tables), "error", ctx.Err())
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case c := <-changes:
			at := c.At
			if err := h.send(ctx, w, "change", streamEvent{Table: c.Table, Op: c.Op, At: &at}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// send reads the table and writes one SSE message. Read failures are
// logged and skipped; write failures end the stream.
func (h *handler) send(ctx context.Context, w http.ResponseWriter, event string, ev streamEvent) error {
	rows, err := h.readTable(ctx, ev.Table)
	if err != nil {
		h.logger.Warn("stream read failed", "table", ev.Table, "error", err)
		return nil
	}
	ev.Rows = rows
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encoding stream event failed", "table", ev.Table, "error", err)
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// readTable returns what the public site shows for table, read from the
// metadata store rather than the cache, which may not have seen the
// change yet.
func (h *handler) readTable(ctx context.Context, table cms.Table) (any, error) {
	switch {
	case table == cms.TableEvents:
		return h.svc.ListEvents(ctx)
	case table == cms.TableSiteStatistics:
		return h.svc.CurrentCount(ctx)
	case table.IsContent():
		return h.svc.ListContent(ctx, table, true)
	case table.IsAsset():
		kind, _ := cms.KindOfTable(table)
		return h.svc.ListAssets(ctx, kind, "")
	case table.IsStat():
		schema, err := cms.ParseSeries(string(table))
		if err != nil {
			return nil, err
		}
		return h.svc.ListStatRows(ctx, schema)
	default:
		return nil, fmt.Errorf("no public view of %s", table)
	}
}

func parseTables(raw string) ([]cms.Table, error) {
	var out []cms.Table
	seen := make(map[cms.Table]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, err := cms.ParseTable(name)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, &cms.ValidationError{Field: "table", Message: "at least one table is required"}
	}
	return out, nil
}

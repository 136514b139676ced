package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cms-go/internal/cms"
)

// SessionCookie names the cookie that identifies a browser session for
// visit counting.
const SessionCookie = "cms_session"

func (h *handler) listContent(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeRead(w, "list content", nil, err)
		return
	}
	recs, err := h.reader.Content(r.Context(), table)
	writeRead(w, "list content", recs, err)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.reader.Events(r.Context())
	writeRead(w, "list events", events, err)
}

func (h *handler) listAssets(w http.ResponseWriter, r *http.Request) {
	kind, err := cms.ParseAssetKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeRead(w, "list assets", nil, err)
		return
	}
	assets, err := h.reader.Assets(r.Context(), kind, r.URL.Query().Get("event"))
	writeRead(w, "list assets", assets, err)
}

func (h *handler) counter(w http.ResponseWriter, r *http.Request) {
	c, err := h.reader.Counter(r.Context())
	writeRead(w, "read counter", c, err)
}

type visitResponse struct {
	Counted bool  `json:"counted"`
	Count   int64 `json:"visitor_count"`
}

// recordVisit counts the caller's session at most once. A session cookie
// is issued when the request carries none.
func (h *handler) recordVisit(w http.ResponseWriter, r *http.Request) {
	sid := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		sid = c.Value
	}
	if sid == "" {
		sid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	counted, err := h.svc.RecordVisit(r.Context(), sid)
	if err != nil {
		h.logger.Warn("recording visit failed", "error", err)
		writeOutcome(w, http.StatusOK, "record visit", err, nil, nil)
		return
	}
	c, err := h.svc.CurrentCount(r.Context())
	if err != nil {
		writeOutcome(w, http.StatusOK, "record visit", err, nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, visitResponse{Counted: counted, Count: c.VisitorCount})
}

func (h *handler) listStats(w http.ResponseWriter, r *http.Request) {
	schema, err := cms.ParseSeries(chi.URLParam(r, "series"))
	if err != nil {
		writeRead(w, "list statistics", nil, err)
		return
	}
	rows, err := h.reader.Stats(r.Context(), schema)
	writeRead(w, "list statistics", rows, err)
}

func (h *handler) exportStats(w http.ResponseWriter, r *http.Request) {
	schema, err := cms.ParseSeries(chi.URLParam(r, "series"))
	if err != nil {
		writeRead(w, "export statistics", nil, err)
		return
	}
	rows, err := h.reader.Stats(r.Context(), schema)
	if err != nil {
		writeRead(w, "export statistics", nil, err)
		return
	}

	name := string(schema.Series) + "_" + time.Now().UTC().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := cms.WriteStatsCSV(w, schema, rows); err != nil {
		h.logger.Warn("writing statistics export failed", "series", schema.Series, "error", err)
	}
}

package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cms-go/internal/cms"
)

// maxUploadMemory bounds the multipart form held in memory; larger parts
// spill to temporary files.
const maxUploadMemory = 32 << 20

// requireToken rejects requests without the admin bearer token.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSON(w, http.StatusUnauthorized, envelope{Outcome: cms.Outcome{
					Kind:    "unauthorized",
					Message: "a valid admin token is required",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func confirmation(r *http.Request) cms.Confirmation {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return cms.Confirmation(ok)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &cms.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

type eventRequest struct {
	Name        string `json:"event_name"`
	Description string `json:"event_description"`
	Date        string `json:"event_date"`
}

func (h *handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeOutcome(w, http.StatusCreated, "create event", err, nil, nil)
		return
	}
	in := cms.EventInput{Name: req.Name, Description: req.Description}
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			badRequest(w, "event_date", "event_date must be YYYY-MM-DD")
			return
		}
		in.Date = &d
	}

	var ev *cms.Event
	err := h.audit.Track(r.Context(), "CreateEvent", req.Name, func() error {
		var err error
		ev, err = h.svc.CreateEvent(r.Context(), in)
		return err
	})
	writeOutcome(w, http.StatusCreated, "create event", err, nil, ev)
}

func (h *handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var report *cms.CascadeReport
	err := h.audit.Track(r.Context(), "DeleteEvent", id, func() error {
		var err error
		report, err = h.svc.DeleteGrouping(r.Context(), id, confirmation(r))
		return err
	})
	var warnings []cms.OrphanedBlob
	if report != nil {
		warnings = report.Orphans
	}
	writeOutcome(w, http.StatusOK, "delete event", err, warnings, report)
}

type batchResponse struct {
	Created []*cms.Asset  `json:"created"`
	Failed  []cms.Outcome `json:"failed,omitempty"`
}

// createAssets accepts one or more "file" parts. A single file is created
// atomically; several files are created independently and reported per
// file.
func (h *handler) createAssets(w http.ResponseWriter, r *http.Request) {
	kind, err := cms.ParseAssetKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeOutcome(w, http.StatusCreated, "upload", err, nil, nil)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, "file", fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		badRequest(w, "file", "no file selected")
		return
	}

	title := cms.Title{
		EN: r.FormValue("title_en"),
		MR: r.FormValue("title_mr"),
		HI: r.FormValue("title_hi"),
	}
	eventID := r.FormValue("event_id")

	uploads := make([]cms.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := openUpload(fh)
		if err != nil {
			badRequest(w, "file", err.Error())
			closeUploads(uploads)
			return
		}
		u.EventID = eventID
		u.Title = title
		uploads = append(uploads, u)
	}
	defer closeUploads(uploads)

	action := "upload " + string(kind)
	params := fmt.Sprintf("%s %d file(s)", kind, len(uploads))
	if len(uploads) == 1 {
		var a *cms.Asset
		err := h.audit.Track(r.Context(), "CreateAsset", params, func() error {
			var err error
			a, err = h.svc.CreateAsset(r.Context(), kind, uploads[0])
			return err
		})
		writeOutcome(w, http.StatusCreated, action, err, nil, a)
		return
	}

	var res *cms.BatchResult
	err = h.audit.Track(r.Context(), "CreateAssets", params, func() error {
		res = h.svc.CreateAssets(r.Context(), kind, uploads)
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d of %d uploads failed", len(res.Failed), len(uploads))
		}
		return nil
	})
	body := batchResponse{Created: res.Created}
	for _, f := range res.Failed {
		body.Failed = append(body.Failed, cms.Describe("upload "+f.FileName, f.Err, nil))
	}

	status := http.StatusCreated
	if len(res.Created) == 0 {
		status = statusOf(cms.KindOf(res.Failed[0].Err))
	} else if err != nil {
		status = http.StatusMultiStatus
	}
	out := cms.Describe(action, nil, nil)
	if err != nil {
		out.OK = false
		out.Kind = cms.KindOf(res.Failed[0].Err).String()
		out.Message = fmt.Sprintf("%s: %v", action, err)
	}
	writeJSON(w, status, envelope{Outcome: out, Data: body})
}

func openUpload(fh *multipart.FileHeader) (cms.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return cms.Upload{}, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	return cms.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, nil
}

func closeUploads(uploads []cms.Upload) {
	for _, u := range uploads {
		if c, ok := u.Body.(io.Closer); ok {
			c.Close()
		}
	}
}

func (h *handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	kind, err := cms.ParseAssetKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "delete asset", err, nil, nil)
		return
	}
	id := chi.URLParam(r, "id")

	var warnings []cms.OrphanedBlob
	err = h.audit.Track(r.Context(), "DeleteAsset", string(kind)+" "+id, func() error {
		var err error
		warnings, err = h.svc.DeleteAsset(r.Context(), kind, id, confirmation(r))
		return err
	})
	writeOutcome(w, http.StatusOK, "delete "+string(kind), err, warnings, nil)
}

func (h *handler) listAllContent(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeRead(w, "list content", nil, err)
		return
	}
	recs, err := h.svc.ListContent(r.Context(), table, false)
	writeRead(w, "list content", recs, err)
}

type contentRequest struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields"`
	IsActive     *bool          `json:"is_active"`
	RowPosition  int            `json:"row_position"`
	ColumnNumber int            `json:"column_number"`
}

func (h *handler) saveContent(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "save content", err, nil, nil)
		return
	}
	var req contentRequest
	if err := decodeBody(r, &req); err != nil {
		writeOutcome(w, http.StatusOK, "save content", err, nil, nil)
		return
	}
	in := cms.ContentInput{
		ID:           req.ID,
		Fields:       req.Fields,
		IsActive:     req.IsActive == nil || *req.IsActive,
		RowPosition:  req.RowPosition,
		ColumnNumber: req.ColumnNumber,
	}

	var rec *cms.ContentRecord
	err = h.audit.Track(r.Context(), "SaveContent", string(table)+" "+req.ID, func() error {
		var err error
		rec, err = h.svc.SaveContent(r.Context(), table, in)
		return err
	})
	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	writeOutcome(w, status, "save "+string(table), err, nil, rec)
}

func (h *handler) deleteContent(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "delete content", err, nil, nil)
		return
	}
	id := chi.URLParam(r, "id")
	err = h.audit.Track(r.Context(), "DeleteContent", string(table)+" "+id, func() error {
		return h.svc.DeleteContent(r.Context(), table, id, confirmation(r))
	})
	writeOutcome(w, http.StatusOK, "delete "+string(table)+" record", err, nil, nil)
}

// moveContent moves a record one step with ?dir=up|down, or to another
// row with ?row=N.
func (h *handler) moveContent(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "move content", err, nil, nil)
		return
	}
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	if raw := q.Get("row"); raw != "" {
		row, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "row", "row must be a number")
			return
		}
		err = h.audit.Track(r.Context(), "MoveContentToRow", fmt.Sprintf("%s %s %d", table, id, row), func() error {
			return h.svc.MoveContentToRow(r.Context(), table, id, row)
		})
		writeOutcome(w, http.StatusOK, "move record", err, nil, nil)
		return
	}

	dir, err := cms.ParseDirection(q.Get("dir"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "move record", err, nil, nil)
		return
	}
	err = h.audit.Track(r.Context(), "MoveContent", fmt.Sprintf("%s %s %s", table, id, q.Get("dir")), func() error {
		return h.svc.MoveContent(r.Context(), table, id, dir)
	})
	writeOutcome(w, http.StatusOK, "move record", err, nil, nil)
}

func (h *handler) setContentActive(w http.ResponseWriter, r *http.Request) {
	table, err := cms.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "update record", err, nil, nil)
		return
	}
	active, err := strconv.ParseBool(r.URL.Query().Get("value"))
	if err != nil {
		badRequest(w, "value", "value must be true or false")
		return
	}
	id := chi.URLParam(r, "id")
	err = h.audit.Track(r.Context(), "SetContentActive", fmt.Sprintf("%s %s %t", table, id, active), func() error {
		return h.svc.SetContentActive(r.Context(), table, id, active)
	})
	writeOutcome(w, http.StatusOK, "update record", err, nil, nil)
}

type statRequest struct {
	ID     string            `json:"id"`
	Values map[string]string `json:"values"`
}

func (h *handler) saveStatRow(w http.ResponseWriter, r *http.Request) {
	schema, err := cms.ParseSeries(chi.URLParam(r, "series"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "save statistics", err, nil, nil)
		return
	}
	var req statRequest
	if err := decodeBody(r, &req); err != nil {
		writeOutcome(w, http.StatusOK, "save statistics", err, nil, nil)
		return
	}

	var row *cms.StatRow
	err = h.audit.Track(r.Context(), "SaveStatRow", string(schema.Series), func() error {
		var err error
		row, err = h.svc.SaveStatRow(r.Context(), schema, req.ID, req.Values)
		return err
	})
	writeOutcome(w, http.StatusOK, "save "+schema.Title, err, nil, row)
}

func (h *handler) deleteStatRow(w http.ResponseWriter, r *http.Request) {
	schema, err := cms.ParseSeries(chi.URLParam(r, "series"))
	if err != nil {
		writeOutcome(w, http.StatusOK, "delete statistics", err, nil, nil)
		return
	}
	key := chi.URLParam(r, "key")
	err = h.audit.Track(r.Context(), "DeleteStatRow", string(schema.Series)+" "+key, func() error {
		return h.svc.DeleteStatRow(r.Context(), schema, key, confirmation(r))
	})
	writeOutcome(w, http.StatusOK, "delete "+schema.Title+" row", err, nil, nil)
}

func (h *handler) resetCounter(w http.ResponseWriter, r *http.Request) {
	err := h.audit.Track(r.Context(), "ResetCounter", "", func() error {
		return h.svc.ResetCounter(r.Context(), confirmation(r))
	})
	writeOutcome(w, http.StatusOK, "reset counter", err, nil, nil)
}

func (h *handler) touchCounter(w http.ResponseWriter, r *http.Request) {
	err := h.audit.Track(r.Context(), "TouchLastUpdated", "", func() error {
		return h.svc.TouchLastUpdated(r.Context())
	})
	writeOutcome(w, http.StatusOK, "update last modified", err, nil, nil)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit", "limit must be a positive number")
			return
		}
		limit = n
	}
	ops, err := h.svc.History(r.Context(), limit)
	writeRead(w, "list history", ops, err)
}

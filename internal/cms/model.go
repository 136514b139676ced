package cms

import "time"

// Event is a grouping that owns zero or more assets.
type Event struct {
	ID          string     `json:"id"`
	Name        string     `json:"event_name"`
	Description string     `json:"event_description,omitempty"`
	Date        *time.Time `json:"event_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Title is a display title in English, Marathi and Hindi. Only English is
// mandatory where a title is required at all.
type Title struct {
	EN string `json:"en"`
	MR string `json:"mr,omitempty"`
	HI string `json:"hi,omitempty"`
}

// Localized returns the title for lang ("en", "mr" or "hi"), falling back
// to English when that translation is empty.
func (t Title) Localized(lang string) string {
	switch lang {
	case "mr":
		if t.MR != "" {
			return t.MR
		}
	case "hi":
		if t.HI != "" {
			return t.HI
		}
	}
	return t.EN
}

// Asset is a stored blob plus the metadata row that points at it.
type Asset struct {
	ID          string    `json:"id"`
	Kind        AssetKind `json:"kind"`
	EventID     string    `json:"event_id,omitempty"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	Title       Title     `json:"title"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ContentRecord is a freeform administrator-edited record in one of the
// content tables.
type ContentRecord struct {
	ID           string         `json:"id"`
	Table        Table          `json:"table"`
	Fields       map[string]any `json:"fields"`
	IsActive     bool           `json:"is_active"`
	DisplayOrder int            `json:"display_order"`
	RowPosition  int            `json:"row_position"`
	ColumnNumber int            `json:"column_number"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SiteCounter is the singleton visitor counter.
type SiteCounter struct {
	VisitorCount int64     `json:"visitor_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// StatRow is one row of a statistical series. Values are keyed by field
// name and hold int64, float64 or string; a missing key means NULL.
// ID is only used by series keyed by a surrogate id.
type StatRow struct {
	ID     string         `json:"id,omitempty"`
	Values map[string]any `json:"values"`
}

// Operation is an audit record of one mutating administrator action.
type Operation struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Parameters string     `json:"parameters"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

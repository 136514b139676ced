package httpapi

import (
	"encoding/json"
	"net/http"

	"cms-go/internal/cms"
)

// envelope is the body of every mutating response and of every error.
type envelope struct {
	cms.Outcome
	Data any `json:"data,omitempty"`
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(kind cms.ErrorKind) int {
	switch kind {
	case cms.KindNone:
		return http.StatusOK
	case cms.KindValidation:
		return http.StatusBadRequest
	case cms.KindConfirmation:
		return http.StatusConflict
	case cms.KindNotFound:
		return http.StatusNotFound
	case cms.KindStorageWrite, cms.KindStorageDelete:
		return http.StatusBadGateway
	case cms.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v before writing the status, so a value that cannot
// be encoded becomes a 500 rather than an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(envelope{Outcome: cms.Describe("encode response", err, nil)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeOutcome writes the outcome of action. okStatus is used on success.
func writeOutcome(w http.ResponseWriter, okStatus int, action string, err error, warnings []cms.OrphanedBlob, data any) {
	out := cms.Describe(action, err, warnings)
	status := okStatus
	if err != nil {
		status = statusOf(cms.KindOf(err))
		data = nil
	}
	writeJSON(w, status, envelope{Outcome: out, Data: data})
}

// writeRead answers a public read.
func writeRead(w http.ResponseWriter, action string, v any, err error) {
	if err != nil {
		writeOutcome(w, http.StatusOK, action, err, nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeOutcome(w, http.StatusOK, "request", &cms.ValidationError{Field: field, Message: message}, nil, nil)
}

package cms

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the result of a mutating call for presentation.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindConfirmation
	KindStorageWrite
	KindStorageDelete
	KindMetadataWrite
	KindMetadataDelete
	KindNotFound
	KindUnavailable
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindNone:           "ok",
	KindValidation:     "validation",
	KindConfirmation:   "confirmation_required",
	KindStorageWrite:   "storage_write",
	KindStorageDelete:  "storage_delete",
	KindMetadataWrite:  "metadata_write",
	KindMetadataDelete: "metadata_delete",
	KindNotFound:       "not_found",
	KindUnavailable:    "unavailable",
	KindInternal:       "internal",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// KindOf maps err onto its ErrorKind. nil maps to KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfirmationRequired):
		return KindConfirmation
	case errors.Is(err, ErrStorageWrite):
		return KindStorageWrite
	case errors.Is(err, ErrStorageDelete):
		return KindStorageDelete
	case errors.Is(err, ErrMetadataWrite):
		return KindMetadataWrite
	case errors.Is(err, ErrMetadataDelete):
		return KindMetadataDelete
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTooManySubscriptions):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// Outcome is the single consolidated result shown for a mutating action,
// whether on the command line or as an HTTP response body.
type Outcome struct {
	OK       bool     `json:"ok"`
	Kind     string   `json:"kind"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

// Describe builds the Outcome for action. Warnings attached to err are
// merged with the explicit warnings list.
func Describe(action string, err error, warnings []OrphanedBlob) Outcome {
	all := append(append([]OrphanedBlob{}, warnings...), WarningsOf(err)...)
	out := Outcome{OK: err == nil, Kind: KindOf(err).String()}
	for _, w := range all {
		out.Warnings = append(out.Warnings, w.String())
	}

	if err == nil {
		out.Message = action + " succeeded"
		if len(all) > 0 {
			out.Message = fmt.Sprintf("%s succeeded; %d file(s) could not be removed from storage", action, len(all))
		}
		return out
	}

	var verr *ValidationError
	switch KindOf(err) {
	case KindValidation:
		if errors.As(err, &verr) {
			out.Field = verr.Field
			out.Message = verr.Message
		} else {
			out.Message = err.Error()
		}
	case KindConfirmation:
		out.Message = action + " was not attempted: confirmation is required"
	case KindStorageWrite:
		out.Message = fmt.Sprintf("%s failed: the file could not be stored, nothing was saved (%v)", action, err)
	case KindMetadataWrite:
		out.Message = fmt.Sprintf("%s failed: the record could not be saved (%v)", action, err)
	case KindMetadataDelete:
		out.Message = fmt.Sprintf("%s failed: the record could not be deleted, nothing was removed (%v)", action, err)
	case KindNotFound:
		out.Message = fmt.Sprintf("%s failed: %v", action, err)
	default:
		out.Message = fmt.Sprintf("%s failed: %v", action, err)
	}
	return out
}

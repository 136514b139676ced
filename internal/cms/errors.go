package cms

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a mutating Service call matches
// (via errors.Is) at most one of these.
var (
	ErrValidation           = errors.New("validation failed")
	ErrStorageWrite         = errors.New("object store write failed")
	ErrStorageDelete        = errors.New("object store delete failed")
	ErrMetadataWrite        = errors.New("metadata write failed")
	ErrMetadataDelete       = errors.New("metadata delete failed")
	ErrNotFound             = errors.New("not found")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrTooManySubscriptions = errors.New("too many subscriptions")
)

// ValidationError reports bad input for a single field. It is always
// produced before either store is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is makes errors.Is(err, ErrValidation) hold for any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OrphanedBlob is a non-fatal warning: a blob that could not be removed and
// is no longer referenced by any metadata row.
type OrphanedBlob struct {
	Path string
	Err  error
}

func (o OrphanedBlob) String() string {
	return fmt.Sprintf("orphaned blob %s: %v", o.Path, o.Err)
}

// OpError ties a failed operation to its error kind and underlying cause.
// Warnings collected before the failure (for example a failed compensating
// delete) travel with it.
type OpError struct {
	Op       string
	Kind     error
	Err      error
	Warnings []OrphanedBlob
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error { return []error{e.Kind, e.Err} }

// WarningsOf returns the orphaned-blob warnings attached to err, if any.
func WarningsOf(err error) []OrphanedBlob {
	var op *OpError
	if errors.As(err, &op) {
		return op.Warnings
	}
	return nil
}

func summarizeOrphans(orphans []OrphanedBlob) string {
	paths := make([]string, 0, len(orphans))
	for _, o := range orphans {
		paths = append(paths, o.Path)
	}
	return strings.Join(paths, ", ")
}

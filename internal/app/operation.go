package app

import (
	"context"
	"sync"
	"time"

	"cms-go/internal/cms"
)

// AuditedOperation tracks one mutating command, from the CLI or the admin
// API. It is created in memory with ID=0 and gets its ID once the
// operations table has a row for it.
type AuditedOperation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string // "running", "success" or "error"
}

// NewAuditedOperation creates a new in-memory operation.
func NewAuditedOperation(name, parameters string) *AuditedOperation {
	return &AuditedOperation{
		Name:       name,
		Parameters: parameters,
		Status:     cms.StatusRunning,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *AuditedOperation) Persisted() bool {
	return op.ID != 0
}

// operationLog is the part of cms.Database the auditor writes to.
type operationLog interface {
	CreateOperation(ctx context.Context, name, parameters string, at time.Time) (int64, error)
	FinishOperation(ctx context.Context, id int64, status string, at time.Time) error
}

// Auditor records mutating operations in the operations table.
type Auditor struct {
	log    operationLog
	clock  cms.Clock
	logger cms.Logger

	mu   sync.Mutex
	last *AuditedOperation
}

// NewAuditor creates an Auditor writing to log.
func NewAuditor(log operationLog, clock cms.Clock, logger cms.Logger) *Auditor {
	return &Auditor{log: log, clock: clock, logger: logger}
}

// Track records name as started, runs fn and records how it finished. The
// error from fn is returned unchanged. Failing to write the audit row is
// logged and never fails the operation itself.
func (a *Auditor) Track(ctx context.Context, name, parameters string, fn func() error) error {
	op := NewAuditedOperation(name, parameters)

	id, err := a.log.CreateOperation(ctx, op.Name, op.Parameters, a.clock.Now())
	if err != nil {
		a.logger.Warn("recording operation start failed", "operation", name, "error", err)
	} else {
		op.ID = id
	}

	runErr := fn()
	op.Status = cms.StatusSuccess
	if runErr != nil {
		op.Status = cms.StatusError
	}

	if op.Persisted() {
		// The request context may already be cancelled once fn returns.
		finishCtx := context.WithoutCancel(ctx)
		if err := a.log.FinishOperation(finishCtx, op.ID, op.Status, a.clock.Now()); err != nil {
			a.logger.Warn("recording operation finish failed", "operation", name, "id", op.ID, "error", err)
		}
	}
	a.logger.Info("operation finished", "operation", name, "id", op.ID, "status", op.Status)

	a.mu.Lock()
	a.last = op
	a.mu.Unlock()
	return runErr
}

// Last returns the most recently finished operation, or nil.
func (a *Auditor) Last() *AuditedOperation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

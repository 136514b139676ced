package cms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ContentInput is an administrator edit of a content record. An empty ID
// creates a new record.
type ContentInput struct {
	ID           string
	Fields       map[string]any
	IsActive     bool
	RowPosition  int
	ColumnNumber int
}

// SaveContent creates or updates a content record. New records, and
// records moved to a different row or column, are placed last in their
// ordering scope.
func (s *Service) SaveContent(ctx context.Context, table Table, in ContentInput) (*ContentRecord, error) {
	const op = "save content"
	if err := mustContent(table); err != nil {
		return nil, err
	}
	if len(in.Fields) == 0 {
		return nil, invalid("fields", "at least one field is required")
	}
	if in.RowPosition < 0 || in.ColumnNumber < 0 {
		return nil, invalid("row_position", "position must not be negative")
	}

	now := s.clock.Now()
	rec := &ContentRecord{
		ID:           in.ID,
		Table:        table,
		Fields:       in.Fields,
		IsActive:     in.IsActive,
		RowPosition:  in.RowPosition,
		ColumnNumber: in.ColumnNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	changeOp := ChangeInsert
	sameScope := false
	if in.ID != "" {
		existing, err := s.db.GetContent(ctx, table, in.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%s %s: %w", op, in.ID, err)
			}
			return nil, &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
		}
		changeOp = ChangeUpdate
		rec.CreatedAt = existing.CreatedAt
		if existing.RowPosition == in.RowPosition && existing.ColumnNumber == in.ColumnNumber {
			rec.DisplayOrder = existing.DisplayOrder
			sameScope = true
		}
	} else {
		rec.ID = s.ids.New()
	}

	if !sameScope {
		next, err := s.db.NextDisplayOrder(ctx, table, in.RowPosition, in.ColumnNumber)
		if err != nil {
			return nil, &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
		}
		rec.DisplayOrder = next
	}

	if err := s.db.SaveContent(ctx, rec); err != nil {
		return nil, &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	s.notify(ctx, table, changeOp)
	return rec, nil
}

// SetContentActive toggles whether a record is shown publicly.
func (s *Service) SetContentActive(ctx context.Context, table Table, id string, active bool) error {
	const op = "set content active"
	if err := mustContent(table); err != nil {
		return err
	}
	rec, err := s.db.GetContent(ctx, table, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s %s: %w", op, id, err)
		}
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	if rec.IsActive == active {
		return nil
	}
	rec.IsActive = active
	rec.UpdatedAt = s.clock.Now()
	if err := s.db.SaveContent(ctx, rec); err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	s.notify(ctx, table, ChangeUpdate)
	return nil
}

// DeleteContent removes a content record.
func (s *Service) DeleteContent(ctx context.Context, table Table, id string, confirm Confirmation) error {
	const op = "delete content"
	if err := mustContent(table); err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("%s %s: %w", op, id, ErrConfirmationRequired)
	}
	if err := s.db.DeleteContent(ctx, table, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s %s: %w", op, id, err)
		}
		return &OpError{Op: op, Kind: ErrMetadataDelete, Err: err}
	}
	s.notify(ctx, table, ChangeDelete)
	return nil
}

// ListContent returns the records of table. Public readers pass
// activeOnly=true.
func (s *Service) ListContent(ctx context.Context, table Table, activeOnly bool) ([]*ContentRecord, error) {
	if err := mustContent(table); err != nil {
		return nil, err
	}
	return s.db.ListContent(ctx, table, activeOnly)
}

// Direction is the way a record moves within its ordering scope.
type Direction int

const (
	Up Direction = iota
	Down
)

// ParseDirection resolves "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	default:
		return Up, invalid("direction", "direction must be up or down, got %q", s)
	}
}

// MoveContent swaps a record's display_order with its neighbour in the
// same (row_position, column_number) scope. Moving the first record up or
// the last record down is a no-op. When the neighbour holds the same
// display_order the scope is first renumbered 1..N in its current visible
// order so that the swap changes what readers see.
func (s *Service) MoveContent(ctx context.Context, table Table, id string, dir Direction) error {
	const op = "move content"
	if err := mustContent(table); err != nil {
		return err
	}

	all, err := s.db.ListContent(ctx, table, false)
	if err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}

	var target *ContentRecord
	for _, r := range all {
		if r.ID == id {
			target = r
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}

	scope := make([]*ContentRecord, 0, len(all))
	for _, r := range all {
		if r.RowPosition == target.RowPosition && r.ColumnNumber == target.ColumnNumber {
			scope = append(scope, r)
		}
	}
	orders := reorder(scope, id, dir)
	if len(orders) == 0 {
		return nil
	}

	if err := s.db.UpdateDisplayOrders(ctx, table, orders, s.clock.Now()); err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	s.notify(ctx, table, ChangeUpdate)
	return nil
}

// reorder computes the display_order assignments that move id one step in
// dir within scope. It returns nil when nothing changes.
func reorder(scope []*ContentRecord, id string, dir Direction) map[string]int {
	sort.SliceStable(scope, func(i, j int) bool {
		if scope[i].DisplayOrder != scope[j].DisplayOrder {
			return scope[i].DisplayOrder < scope[j].DisplayOrder
		}
		return scope[i].ID < scope[j].ID
	})

	idx := -1
	for i, r := range scope {
		if r.ID == id {
			idx = i
			break
		}
	}
	nb := idx - 1
	if dir == Down {
		nb = idx + 1
	}
	if idx < 0 || nb < 0 || nb >= len(scope) {
		return nil
	}

	orders := map[string]int{}
	if scope[idx].DisplayOrder == scope[nb].DisplayOrder {
		for i, r := range scope {
			if r.DisplayOrder != i+1 {
				orders[r.ID] = i + 1
			}
			r.DisplayOrder = i + 1
		}
	}

	a, b := scope[idx], scope[nb]
	orders[a.ID], orders[b.ID] = b.DisplayOrder, a.DisplayOrder
	return orders
}

// MoveContentToRow places a record last in the given row, keeping its
// column.
func (s *Service) MoveContentToRow(ctx context.Context, table Table, id string, row int) error {
	const op = "move content to row"
	if err := mustContent(table); err != nil {
		return err
	}
	if row < 0 {
		return invalid("row_position", "position must not be negative")
	}
	rec, err := s.db.GetContent(ctx, table, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s %s: %w", op, id, err)
		}
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	if rec.RowPosition == row {
		return nil
	}

	next, err := s.db.NextDisplayOrder(ctx, table, row, rec.ColumnNumber)
	if err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	rec.RowPosition = row
	rec.DisplayOrder = next
	rec.UpdatedAt = s.clock.Now()
	if err := s.db.SaveContent(ctx, rec); err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	s.notify(ctx, table, ChangeUpdate)
	return nil
}

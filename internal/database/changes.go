package database

import (
	"context"
	"fmt"
	"time"

	"cms-go/internal/cms"
)

// ChangeEntry is one row of the change journal.
type ChangeEntry struct {
	ID     int64
	Change cms.Change
}

// AppendChange records c in the change journal and returns its id.
func (s *SQLDatabase) AppendChange(ctx context.Context, c cms.Change) (int64, error) {
	var id int64
	err := s.queryRow(ctx, s.db,
		`INSERT INTO sync_changes (table_name, op, changed_at) VALUES (?, ?, ?) RETURNING id`,
		string(c.Table), string(c.Op), c.At.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("journaling %s change: %w", c.Table, err)
	}
	return id, nil
}

// ChangesSince returns up to limit journal entries with id greater than
// after, oldest first.
func (s *SQLDatabase) ChangesSince(ctx context.Context, after int64, limit int) ([]ChangeEntry, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, table_name, op, changed_at FROM sync_changes WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("reading change journal: %w", err)
	}
	defer rows.Close()

	var out []ChangeEntry
	for rows.Next() {
		var (
			e         ChangeEntry
			table, op string
		)
		if err := rows.Scan(&e.ID, &table, &op, &e.Change.At); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		e.Change.Table = cms.Table(table)
		e.Change.Op = cms.ChangeOp(op)
		e.Change.At = e.Change.At.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestChangeID returns the id of the newest journal entry, or 0.
func (s *SQLDatabase) LatestChangeID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, s.db, `SELECT COALESCE(MAX(id), 0) FROM sync_changes`).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading change journal head: %w", err)
	}
	return id, nil
}

// PruneChanges drops journal entries older than before.
func (s *SQLDatabase) PruneChanges(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM sync_changes WHERE changed_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning change journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned rows: %w", err)
	}
	return n, nil
}

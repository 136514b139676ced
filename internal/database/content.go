package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cms-go/internal/cms"
)

const contentColumns = `id, fields, is_active, display_order, row_position, column_number, created_at, updated_at`

func contentTable(t cms.Table) (string, error) {
	if !t.IsContent() {
		return "", fmt.Errorf("%s is not a content table", t)
	}
	return string(t), nil
}

func scanContent(t cms.Table, sc interface{ Scan(...any) error }) (*cms.ContentRecord, error) {
	var (
		rec    cms.ContentRecord
		fields string
	)
	if err := sc.Scan(&rec.ID, &fields, &rec.IsActive, &rec.DisplayOrder, &rec.RowPosition, &rec.ColumnNumber, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s: %w", rec.ID, err)
	}
	rec.Table = t
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *SQLDatabase) SaveContent(ctx context.Context, rec *cms.ContentRecord) error {
	table, err := contentTable(rec.Table)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	_, err = s.exec(ctx, s.db,
		`INSERT INTO `+table+` (`+contentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			fields = excluded.fields,
			is_active = excluded.is_active,
			display_order = excluded.display_order,
			row_position = excluded.row_position,
			column_number = excluded.column_number,
			updated_at = excluded.updated_at`,
		rec.ID, string(fields), rec.IsActive, rec.DisplayOrder, rec.RowPosition, rec.ColumnNumber,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving %s record: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) GetContent(ctx context.Context, t cms.Table, id string) (*cms.ContentRecord, error) {
	table, err := contentTable(t)
	if err != nil {
		return nil, err
	}
	rec, err := scanContent(t, s.queryRow(ctx, s.db, `SELECT `+contentColumns+` FROM `+table+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s record %s: %w", table, id, cms.ErrNotFound)
		}
		return nil, fmt.Errorf("getting %s record: %w", table, err)
	}
	return rec, nil
}

func (s *SQLDatabase) ListContent(ctx context.Context, t cms.Table, activeOnly bool) ([]*cms.ContentRecord, error) {
	table, err := contentTable(t)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + contentColumns + ` FROM ` + table
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY row_position, column_number, display_order, id`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []*cms.ContentRecord
	for rows.Next() {
		rec, err := scanContent(t, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s record: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLDatabase) DeleteContent(ctx context.Context, t cms.Table, id string) error {
	table, err := contentTable(t)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting %s record: %w", table, err)
	}
	return expectOne(res, table+" record "+id)
}

func (s *SQLDatabase) UpdateDisplayOrders(ctx context.Context, t cms.Table, orders map[string]int, at time.Time) error {
	table, err := contentTable(t)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for id, order := range orders {
			res, err := s.exec(ctx, tx, `UPDATE `+table+` SET display_order = ?, updated_at = ? WHERE id = ?`, order, at.UTC(), id)
			if err != nil {
				return fmt.Errorf("updating display order of %s: %w", id, err)
			}
			if err := expectOne(res, table+" record "+id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLDatabase) NextDisplayOrder(ctx context.Context, t cms.Table, row, column int) (int, error) {
	table, err := contentTable(t)
	if err != nil {
		return 0, err
	}
	var next int
	err = s.queryRow(ctx, s.db,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM `+table+` WHERE row_position = ? AND column_number = ?`,
		row, column).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next display order: %w", err)
	}
	return next, nil
}

// Site counter

func (s *SQLDatabase) IncrementVisitorCount(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := s.queryRow(ctx, s.db,
		`UPDATE site_statistics SET visitor_count = visitor_count + 1, last_updated = ? WHERE id = 1 RETURNING visitor_count`,
		at.UTC()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("site counter: %w", cms.ErrNotFound)
		}
		return 0, fmt.Errorf("incrementing visitor count: %w", err)
	}
	return count, nil
}

func (s *SQLDatabase) GetSiteCounter(ctx context.Context) (*cms.SiteCounter, error) {
	var c cms.SiteCounter
	err := s.queryRow(ctx, s.db, `SELECT visitor_count, last_updated FROM site_statistics WHERE id = 1`).
		Scan(&c.VisitorCount, &c.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("site counter: %w", cms.ErrNotFound)
		}
		return nil, fmt.Errorf("reading site counter: %w", err)
	}
	c.LastUpdated = c.LastUpdated.UTC()
	return &c, nil
}

func (s *SQLDatabase) ResetVisitorCount(ctx context.Context, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE site_statistics SET visitor_count = 0, last_updated = ? WHERE id = 1`, at.UTC())
	if err != nil {
		return fmt.Errorf("resetting visitor count: %w", err)
	}
	return expectOne(res, "site counter")
}

func (s *SQLDatabase) TouchLastUpdated(ctx context.Context, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE site_statistics SET last_updated = ? WHERE id = 1`, at.UTC())
	if err != nil {
		return fmt.Errorf("updating last modified: %w", err)
	}
	return expectOne(res, "site counter")
}

// Operations

func (s *SQLDatabase) CreateOperation(ctx context.Context, name, parameters string, at time.Time) (int64, error) {
	var id int64
	err := s.queryRow(ctx, s.db,
		`INSERT INTO operations (name, parameters, status, started_at) VALUES (?, ?, ?, ?) RETURNING id`,
		name, parameters, cms.StatusRunning, at.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	return id, nil
}

func (s *SQLDatabase) FinishOperation(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`, status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return expectOne(res, fmt.Sprintf("operation %d", id))
}

func (s *SQLDatabase) ListOperations(ctx context.Context, limit int) ([]*cms.Operation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx, s.db,
		`SELECT id, name, parameters, status, started_at, finished_at FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var out []*cms.Operation
	for rows.Next() {
		var (
			op       cms.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Name, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.StartedAt = op.StartedAt.UTC()
		if finished.Valid {
			t := finished.Time.UTC()
			op.FinishedAt = &t
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

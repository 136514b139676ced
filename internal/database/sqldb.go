package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/database/migrations"
)

// SQLDatabase implements cms.Database over database/sql. Queries are
// written with "?" placeholders and rebound for the active dialect. Table
// names interpolated into queries always come from the closed cms.Table
// and cms.StatSeries sets.
type SQLDatabase struct {
	db      *sql.DB
	dialect migrations.Dialect
	path    string
	release func()
}

var _ cms.Database = (*SQLDatabase)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB exposes the underlying connection for tools and tests.
func (s *SQLDatabase) DB() *sql.DB { return s.db }

// rebind rewrites "?" placeholders to "$n" for postgres.
func (s *SQLDatabase) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLDatabase) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLDatabase) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLDatabase) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLDatabase) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, cms.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Event operations

func (s *SQLDatabase) CreateEvent(ctx context.Context, ev *cms.Event) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO events (id, event_name, event_description, event_date, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Name, ev.Description, nullTime(ev.Date), ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

const eventColumns = `id, event_name, event_description, event_date, created_at`

func scanEvent(sc interface{ Scan(...any) error }) (*cms.Event, error) {
	var (
		ev   cms.Event
		date sql.NullTime
	)
	if err := sc.Scan(&ev.ID, &ev.Name, &ev.Description, &date, &ev.CreatedAt); err != nil {
		return nil, err
	}
	if date.Valid {
		d := date.Time.UTC()
		ev.Date = &d
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, nil
}

func (s *SQLDatabase) GetEvent(ctx context.Context, id string) (*cms.Event, error) {
	ev, err := scanEvent(s.queryRow(ctx, s.db, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, cms.ErrNotFound)
		}
		return nil, fmt.Errorf("getting event: %w", err)
	}
	return ev, nil
}

func (s *SQLDatabase) ListEvents(ctx context.Context) ([]*cms.Event, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []*cms.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteEventCascade reads the owned assets, deletes them, then deletes the
// event, all in one transaction. Asset rows are removed explicitly rather
// than through a referential cascade.
func (s *SQLDatabase) DeleteEventCascade(ctx context.Context, id string) ([]*cms.Asset, error) {
	var owned []*cms.Asset
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists string
		if err := s.queryRow(ctx, tx, `SELECT id FROM events WHERE id = ?`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("event %s: %w", id, cms.ErrNotFound)
			}
			return fmt.Errorf("reading event: %w", err)
		}

		for _, kind := range cms.AssetKinds() {
			assets, err := s.listAssets(ctx, tx, kind, id)
			if err != nil {
				return err
			}
			owned = append(owned, assets...)
		}

		for _, kind := range cms.AssetKinds() {
			table := kind.Policy().Table
			if _, err := s.exec(ctx, tx, `DELETE FROM `+string(table)+` WHERE event_id = ?`, id); err != nil {
				return fmt.Errorf("deleting %s rows: %w", table, err)
			}
		}

		res, err := s.exec(ctx, tx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting event: %w", err)
		}
		return expectOne(res, "event "+id)
	})
	if err != nil {
		return nil, err
	}
	return owned, nil
}

// Asset operations

const assetColumns = `id, event_id, url, path, file_name, file_size, content_type, title_en, title_mr, title_hi, uploaded_at`

func scanAsset(kind cms.AssetKind, sc interface{ Scan(...any) error }) (*cms.Asset, error) {
	var (
		a       cms.Asset
		eventID sql.NullString
	)
	err := sc.Scan(&a.ID, &eventID, &a.URL, &a.Path, &a.FileName, &a.FileSize, &a.ContentType,
		&a.Title.EN, &a.Title.MR, &a.Title.HI, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	a.Kind = kind
	a.EventID = eventID.String
	a.UploadedAt = a.UploadedAt.UTC()
	return &a, nil
}

func (s *SQLDatabase) InsertAsset(ctx context.Context, a *cms.Asset) error {
	table := a.Kind.Policy().Table
	if table == "" {
		return fmt.Errorf("unknown asset kind %q", a.Kind)
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO `+string(table)+` (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullString(a.EventID), a.URL, a.Path, a.FileName, a.FileSize, a.ContentType,
		a.Title.EN, a.Title.MR, a.Title.HI, a.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) GetAsset(ctx context.Context, kind cms.AssetKind, id string) (*cms.Asset, error) {
	table := kind.Policy().Table
	if table == "" {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	a, err := scanAsset(kind, s.queryRow(ctx, s.db, `SELECT `+assetColumns+` FROM `+string(table)+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s asset %s: %w", kind, id, cms.ErrNotFound)
		}
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	return a, nil
}

func (s *SQLDatabase) ListAssets(ctx context.Context, kind cms.AssetKind, eventID string) ([]*cms.Asset, error) {
	return s.listAssets(ctx, s.db, kind, eventID)
}

func (s *SQLDatabase) listAssets(ctx context.Context, q querier, kind cms.AssetKind, eventID string) ([]*cms.Asset, error) {
	table := kind.Policy().Table
	if table == "" {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}

	query := `SELECT ` + assetColumns + ` FROM ` + string(table)
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY uploaded_at DESC, id`

	rows, err := s.query(ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []*cms.Asset
	for rows.Next() {
		a, err := scanAsset(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLDatabase) DeleteAsset(ctx context.Context, kind cms.AssetKind, id string) error {
	table := kind.Policy().Table
	if table == "" {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	res, err := s.exec(ctx, s.db, `DELETE FROM `+string(table)+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return expectOne(res, string(kind)+" asset "+id)
}

// CheckMigrations reports whether the schema is current.
func (s *SQLDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db, s.dialect)
}

// Migrate applies pending migrations.
func (s *SQLDatabase) Migrate() error {
	return migrations.MigrateUp(s.db, s.dialect)
}

// Close closes the database connection.
func (s *SQLDatabase) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.release != nil {
		s.release()
	}
	return err
}

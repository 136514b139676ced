package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"cms-go/internal/cms"
)

// Statistics tables are addressed generically from their schema: the
// column list is the schema's field list, plus "id" for surrogate-keyed
// series.

func statColumns(schema *cms.SeriesSchema) []string {
	cols := make([]string, 0, len(schema.Fields)+1)
	if schema.Surrogate {
		cols = append(cols, "id")
	}
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func statKeyColumn(schema *cms.SeriesSchema) string {
	if schema.Surrogate {
		return "id"
	}
	return schema.KeyField
}

func statArgs(schema *cms.SeriesSchema, row *cms.StatRow) []any {
	args := make([]any, 0, len(schema.Fields)+1)
	if schema.Surrogate {
		args = append(args, row.ID)
	}
	for _, f := range schema.Fields {
		args = append(args, row.Values[f.Name])
	}
	return args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLDatabase) ListStatRows(ctx context.Context, schema *cms.SeriesSchema) ([]*cms.StatRow, error) {
	table := string(schema.Series.Table())
	cols := statColumns(schema)
	rows, err := s.query(ctx, s.db,
		`SELECT `+strings.Join(cols, ", ")+` FROM `+table+` ORDER BY `+schema.KeyField+` DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []*cms.StatRow
	for rows.Next() {
		var id sql.NullString
		dest := make([]any, 0, len(cols))
		if schema.Surrogate {
			dest = append(dest, &id)
		}
		for _, f := range schema.Fields {
			switch f.Type {
			case cms.FieldInteger:
				dest = append(dest, new(sql.NullInt64))
			case cms.FieldNumber:
				dest = append(dest, new(sql.NullFloat64))
			default:
				dest = append(dest, new(sql.NullString))
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}

		row := &cms.StatRow{ID: id.String, Values: make(map[string]any, len(schema.Fields))}
		offset := len(dest) - len(schema.Fields)
		for i, f := range schema.Fields {
			switch v := dest[offset+i].(type) {
			case *sql.NullInt64:
				if v.Valid {
					row.Values[f.Name] = v.Int64
				}
			case *sql.NullFloat64:
				if v.Valid {
					row.Values[f.Name] = v.Float64
				}
			case *sql.NullString:
				if v.Valid {
					row.Values[f.Name] = v.String
				}
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLDatabase) InsertStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	table := string(schema.Series.Table())
	cols := statColumns(schema)
	_, err := s.exec(ctx, s.db,
		`INSERT INTO `+table+` (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders(len(cols))+`)`,
		statArgs(schema, row)...)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) UpsertStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	table := string(schema.Series.Table())
	cols := statColumns(schema)
	key := statKeyColumn(schema)

	var sets []string
	for _, c := range cols {
		if c != key {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO `+table+` (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders(len(cols))+`)
		ON CONFLICT (`+key+`) DO UPDATE SET `+strings.Join(sets, ", "),
		statArgs(schema, row)...)
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", table, err)
	}
	return nil
}

func (s *SQLDatabase) UpdateStatRow(ctx context.Context, schema *cms.SeriesSchema, row *cms.StatRow) error {
	table := string(schema.Series.Table())
	sets := make([]string, len(schema.Fields))
	args := make([]any, 0, len(schema.Fields)+1)
	for i, f := range schema.Fields {
		sets[i] = f.Name + " = ?"
		args = append(args, row.Values[f.Name])
	}
	args = append(args, row.ID)

	res, err := s.exec(ctx, s.db, `UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", table, err)
	}
	return expectOne(res, table+" row "+row.ID)
}

func (s *SQLDatabase) DeleteStatRow(ctx context.Context, schema *cms.SeriesSchema, key string) error {
	table := string(schema.Series.Table())
	var arg any = key
	if !schema.Surrogate {
		if f, ok := schema.Field(schema.KeyField); ok && f.Type == cms.FieldInteger {
			n, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fmt.Errorf("%s row %q: %w", table, key, cms.ErrNotFound)
			}
			arg = n
		}
	}
	res, err := s.exec(ctx, s.db, `DELETE FROM `+table+` WHERE `+statKeyColumn(schema)+` = ?`, arg)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return expectOne(res, table+" row "+key)
}

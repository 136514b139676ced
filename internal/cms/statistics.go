package cms

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SaveStatRow validates input against the series schema and writes it.
//
// Natural-key series upsert by key. Surrogate-key series insert a new row
// when id is empty (a duplicate natural value is a MetadataWriteError) and
// replace the row with that id otherwise.
func (s *Service) SaveStatRow(ctx context.Context, schema *SeriesSchema, id string, input map[string]string) (*StatRow, error) {
	const op = "save statistics row"
	row, err := schema.ParseRow(id, input)
	if err != nil {
		return nil, err
	}

	switch {
	case schema.Surrogate && id == "":
		row.ID = s.ids.New()
		err = s.db.InsertStatRow(ctx, schema, row)
	case schema.Surrogate:
		err = s.db.UpdateStatRow(ctx, schema, row)
	case id != "" && id != schema.KeyOf(row):
		return nil, invalid(schema.KeyField, "%s cannot be changed, delete the row instead", schema.KeyField)
	default:
		err = s.db.UpsertStatRow(ctx, schema, row)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", op, id, err)
		}
		return nil, &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}

	s.notify(ctx, schema.Series.Table(), ChangeUpdate)
	return row, nil
}

// DeleteStatRow removes the row addressed by key.
func (s *Service) DeleteStatRow(ctx context.Context, schema *SeriesSchema, key string, confirm Confirmation) error {
	const op = "delete statistics row"
	if strings.TrimSpace(key) == "" {
		return invalid(schema.KeyField, "a row key is required")
	}
	if !confirm {
		return fmt.Errorf("%s %s: %w", op, key, ErrConfirmationRequired)
	}
	if err := s.db.DeleteStatRow(ctx, schema, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s %s: %w", op, key, err)
		}
		return &OpError{Op: op, Kind: ErrMetadataDelete, Err: err}
	}
	s.notify(ctx, schema.Series.Table(), ChangeDelete)
	return nil
}

// ListStatRows returns the rows of a series, newest key first.
func (s *Service) ListStatRows(ctx context.Context, schema *SeriesSchema) ([]*StatRow, error) {
	return s.db.ListStatRows(ctx, schema)
}

// ExportStatsCSV writes the series as CSV with the field labels as header.
func (s *Service) ExportStatsCSV(ctx context.Context, schema *SeriesSchema, w io.Writer) error {
	rows, err := s.db.ListStatRows(ctx, schema)
	if err != nil {
		return fmt.Errorf("listing %s: %w", schema.Series, err)
	}
	return WriteStatsCSV(w, schema, rows)
}

// WriteStatsCSV renders rows as CSV.
func WriteStatsCSV(w io.Writer, schema *SeriesSchema, rows []*StatRow) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		header[i] = f.Label
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		rec := make([]string, len(schema.Fields))
		for i, f := range schema.Fields {
			rec[i] = FormatValue(r.Values[f.Name])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

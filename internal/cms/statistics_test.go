package cms_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"cms-go/internal/cms"
	"cms-go/internal/testutil"
)

func schema(t *testing.T, series cms.StatSeries) *cms.SeriesSchema {
	t.Helper()
	s, err := cms.ParseSeries(string(series))
	if err != nil {
		t.Fatalf("ParseSeries() error = %v", err)
	}
	return s
}

func TestSaveStatRow_NaturalKey(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	s := schema(t, cms.SeriesBirthRates)

	if _, err := h.Service.SaveStatRow(ctx, s, "", map[string]string{"year": "2019", "india_srs": "20.0"}); err != nil {
		t.Fatalf("SaveStatRow() error = %v", err)
	}
	if _, err := h.Service.SaveStatRow(ctx, s, "", map[string]string{"year": "2021", "india_srs": "19.5"}); err != nil {
		t.Fatalf("SaveStatRow() error = %v", err)
	}
	// Same year again replaces the row.
	if _, err := h.Service.SaveStatRow(ctx, s, "2019", map[string]string{"year": "2019", "india_srs": "19.7"}); err != nil {
		t.Fatalf("SaveStatRow(update) error = %v", err)
	}

	rows, err := h.Service.ListStatRows(ctx, s)
	if err != nil {
		t.Fatalf("ListStatRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Values["year"] != int64(2021) || rows[1].Values["india_srs"] != 19.7 {
		t.Errorf("rows = %v, %v", rows[0].Values, rows[1].Values)
	}

	_, err = h.Service.SaveStatRow(ctx, s, "2019", map[string]string{"year": "2020"})
	if !errors.Is(err, cms.ErrValidation) {
		t.Errorf("changing the key error = %v, want ValidationError", err)
	}
}

func TestSaveStatRow_SurrogateKey(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	s := schema(t, cms.SeriesSexRatioHMIS)

	row, err := h.Service.SaveStatRow(ctx, s, "", map[string]string{"year_range": "2017-2018", "sex_ratio": "927"})
	if err != nil {
		t.Fatalf("SaveStatRow() error = %v", err)
	}
	if row.ID == "" {
		t.Fatal("surrogate id not assigned")
	}

	_, err = h.Service.SaveStatRow(ctx, s, "", map[string]string{"year_range": "2017-2018", "sex_ratio": "930"})
	if !errors.Is(err, cms.ErrMetadataWrite) {
		t.Errorf("duplicate year range error = %v, want ErrMetadataWrite", err)
	}

	if _, err := h.Service.SaveStatRow(ctx, s, row.ID, map[string]string{"year_range": "2017-2018", "sex_ratio": "931"}); err != nil {
		t.Fatalf("SaveStatRow(update) error = %v", err)
	}
	rows, _ := h.Service.ListStatRows(ctx, s)
	if len(rows) != 1 || rows[0].Values["sex_ratio"] != 931.0 {
		t.Errorf("rows = %+v", rows)
	}

	_, err = h.Service.SaveStatRow(ctx, s, "no-such-row", map[string]string{"year_range": "2019-2020", "sex_ratio": "940"})
	if !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("SaveStatRow(unknown id) error = %v, want ErrNotFound", err)
	}
	if rows, _ := h.Service.ListStatRows(ctx, s); len(rows) != 1 {
		t.Errorf("unknown id inserted a row: %+v", rows)
	}
}

func TestSaveStatRow_ValidationGating(t *testing.T) {
	inputs := []map[string]string{
		{"india_srs": "1"},                   // missing required year
		{"year": "abc"},                      // wrong type
		{"year": "1800"},                     // out of range
		{"year": "2020", "india_srs": "-1"},  // below minimum
		{"year": "2020", "population": "10"}, // undeclared field
		{"year": "2019", "india_srs": "NaN"},
		{"year": "2019", "india_srs": "Inf"},
		{"year": "2019", "india_srs": "+Infinity"},
		{"year": "2019", "india_srs": "0x1p4"},
	}
	for _, in := range inputs {
		h := testutil.NewHarness(t)
		_, err := h.Service.SaveStatRow(context.Background(), schema(t, cms.SeriesDeathRates), "", in)
		if !errors.Is(err, cms.ErrValidation) {
			t.Errorf("SaveStatRow(%v) error = %v, want ValidationError", in, err)
		}
		if h.DB.TotalCalls() != 0 {
			t.Errorf("SaveStatRow(%v) reached the database", in)
		}
	}

	h := testutil.NewHarness(t)
	_, err := h.Service.SaveStatRow(context.Background(), schema(t, cms.SeriesSexRatioHMIS), "", map[string]string{"year_range": "2017"})
	if !errors.Is(err, cms.ErrValidation) || h.DB.TotalCalls() != 0 {
		t.Errorf("pattern mismatch error = %v, db calls = %d", err, h.DB.TotalCalls())
	}
}

func TestDeleteStatRow(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	s := schema(t, cms.SeriesInfantMortality)
	h.Service.SaveStatRow(ctx, s, "", map[string]string{"year": "2020", "india_srs": "28"})

	if err := h.Service.DeleteStatRow(ctx, s, "2020", cms.Unconfirmed); !errors.Is(err, cms.ErrConfirmationRequired) {
		t.Fatalf("DeleteStatRow(unconfirmed) error = %v", err)
	}
	if err := h.Service.DeleteStatRow(ctx, s, "2020", cms.Confirmed); err != nil {
		t.Fatalf("DeleteStatRow() error = %v", err)
	}
	if err := h.Service.DeleteStatRow(ctx, s, "2020", cms.Confirmed); !errors.Is(err, cms.ErrNotFound) {
		t.Errorf("second DeleteStatRow() error = %v, want ErrNotFound", err)
	}
	if !h.Notifier.Tables()[s.Series.Table()] {
		t.Error("series change not published")
	}
}

func TestExportStatsCSV(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	s := schema(t, cms.SeriesSexRatioComparison)
	h.Service.SaveStatRow(ctx, s, "", map[string]string{"year": "2011", "maharashtra_scd_rural": "948", "sindhudurg_scd": "1037.5"})
	h.Service.SaveStatRow(ctx, s, "", map[string]string{"year": "2021", "sindhudurg_scd": "1040"})

	var buf bytes.Buffer
	if err := h.Service.ExportStatsCSV(ctx, s, &buf); err != nil {
		t.Fatalf("ExportStatsCSV() error = %v", err)
	}

	want := strings.Join([]string{
		"Year,Maharashtra SCD Rural,Sindhudurg SCD",
		"2021,,1040",
		"2011,948,1037.5",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

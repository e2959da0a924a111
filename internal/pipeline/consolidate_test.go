package pipeline

import (
	"reflect"
	"testing"
)

func TestConsolidate_EmptyInput(t *testing.T) {
	got := Consolidate(nil)

	if !reflect.DeepEqual(got.Columns, BronzeColumns) {
		t.Errorf("Consolidate(nil) columns = %v, want %v", got.Columns, BronzeColumns)
	}
	if got.NumRows() != 0 {
		t.Errorf("Consolidate(nil) rows = %d, want 0", got.NumRows())
	}
}

func TestConsolidate(t *testing.T) {
	a := Table{
		Columns: []string{"date", "partner", "amount", "source_file", "ingested_at"},
		Rows: [][]string{
			{"2024-01-01", "ACME", "10.5", "a.csv", "2024-05-01T10:00:00+00:00"},
		},
	}
	// Second table misses the amount column entirely.
	b := Table{
		Columns: []string{"date", "partner", "source_file", "ingested_at"},
		Rows: [][]string{
			{"2024-01-02", "Beta", "b.csv", "2024-05-01T10:00:01+00:00"},
		},
	}

	got := Consolidate([]Table{a, b})

	want := [][]string{
		{"2024-01-01", "ACME", "10.5", "a.csv", "2024-05-01T10:00:00+00:00"},
		{"2024-01-02", "Beta", "", "b.csv", "2024-05-01T10:00:01+00:00"},
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("Consolidate() rows = %v, want %v", got.Rows, want)
	}
}

func TestConsolidate_CoercesJunkToNull(t *testing.T) {
	in := Table{
		Columns: []string{"date", "partner", "amount", "source_file", "ingested_at"},
		Rows: [][]string{
			{"not a date", "ACME", "abc", "a.csv", "2024-05-01T10:00:00+00:00"},
			{"2024-01-01", "Beta", "1,5", "a.csv", "2024-05-01T10:00:00+00:00"},
		},
	}

	got := Consolidate([]Table{in})

	if got.Cell(0, FieldDate) != "" {
		t.Errorf("unparseable date survived: %q", got.Cell(0, FieldDate))
	}
	if got.Cell(0, FieldAmount) != "" {
		t.Errorf("non-numeric amount survived: %q", got.Cell(0, FieldAmount))
	}
	// Locale parsing does not belong here: "1,5" is junk by bronze rules.
	if got.Cell(1, FieldAmount) != "" {
		t.Errorf("comma amount should be null in bronze, got %q", got.Cell(1, FieldAmount))
	}
	if got.Cell(1, FieldDate) != "2024-01-01" {
		t.Errorf("valid date lost: %q", got.Cell(1, FieldDate))
	}
}

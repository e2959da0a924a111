package pipeline

import (
	"reflect"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"1.234,56", 1234.56, true},
		// With both separators present the comma is the decimal point, so
		// an anglo thousands notation reads as a small number.
		{"1,234.56", 1.23456, true},
		{"1.234", 1.234, true},
		{"€1.234,56", 1234.56, true},
		{"EUR 1.234,56", 1234.56, true},
		{"- 2.500", -2.5, true},
		{"2500", 2500, true},
		{"2,5", 2.5, true},
		{"0", 0, true},
		{"-0,5", -0.5, true},
		{"1 234,56", 1234.56, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"€", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseAmount(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{1234.56, "1234.56"},
		{-2.5, "-2.5"},
		{2500, "2500"},
		{0, "0"},
	}

	for _, tt := range tests {
		got := FormatAmount(tt.input)
		if got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input  string
		want   time.Time
		wantOK bool
	}{
		{"2024-03-05", date(2024, 3, 5), true},
		{"2024-03-05T14:30:00Z", date(2024, 3, 5), true},
		{"2024-03-05 14:30:00", date(2024, 3, 5), true},
		{"2024/03/05", date(2024, 3, 5), true},
		{"05-03-2024", date(2024, 3, 5), true},
		{"2 Jan 2024", date(2024, 1, 2), true},
		{"Jan 2, 2024", date(2024, 1, 2), true},
		// Slash dates resolve day-first.
		{"05/03/2024", date(2024, 3, 5), true},
		{"5/3/2024", date(2024, 3, 5), true},
		{"31/12/2024", date(2024, 12, 31), true},
		// Day position over 12 forces the month-first reading.
		{"12/25/2024", date(2024, 12, 25), true},
		{"", time.Time{}, false},
		{"not a date", time.Time{}, false},
		{"2024-13-05", time.Time{}, false},
		{"32/01/2024", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanPartner(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ACME Corp", "ACME Corp"},
		{"  ACME Corp  ", "ACME Corp"},
		{"ACME    Corp", "ACME Corp"},
		{"\tACME\n Corp ", "ACME Corp"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		got := CleanPartner(tt.input)
		if got != tt.want {
			t.Errorf("CleanPartner(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := Table{
		Columns: []string{"fecha", "cliente", "importe", "notas"},
		Rows: [][]string{
			{"05/03/2024", "  ACME   Corp ", "1.234,56", "x"},
			{"not a date", "Beta SL", "abc", "y"},
			{"2024-01-15", "", "- 2.500", "z"},
		},
	}
	mapping := map[string]string{"fecha": "date", "cliente": "partner", "importe": "amount"}

	got, err := Normalize(raw, mapping)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if !reflect.DeepEqual(got.Columns, []string{"date", "partner", "amount"}) {
		t.Errorf("Normalize() columns = %v, want canonical schema", got.Columns)
	}
	want := [][]string{
		{"2024-03-05", "ACME Corp", "1234.56"},
		{"", "Beta SL", ""},
		{"2024-01-15", "", "-2.5"},
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("Normalize() rows = %v, want %v", got.Rows, want)
	}
}

func TestNormalize_UnmappedFieldIsNull(t *testing.T) {
	raw := Table{
		Columns: []string{"fecha", "importe"},
		Rows:    [][]string{{"2024-01-01", "10"}},
	}
	got, err := Normalize(raw, map[string]string{"fecha": "date", "importe": "amount"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Cell(0, FieldPartner) != "" {
		t.Errorf("expected null partner, got %q", got.Cell(0, FieldPartner))
	}
	if got.Cell(0, FieldDate) != "2024-01-01" || got.Cell(0, FieldAmount) != "10" {
		t.Errorf("mapped fields not preserved: %v", got.Rows[0])
	}
}

func TestNormalize_StructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		mapping map[string]string
	}{
		{
			name:    "empty table",
			table:   Table{},
			mapping: map[string]string{},
		},
		{
			name:    "non-canonical target",
			table:   Table{Columns: []string{"a"}},
			mapping: map[string]string{"a": "category"},
		},
		{
			name:    "two sources for one field",
			table:   Table{Columns: []string{"date", "fecha"}},
			mapping: map[string]string{"date": "date", "fecha": "date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.table, tt.mapping); err == nil {
				t.Error("Normalize() expected error, got nil")
			}
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

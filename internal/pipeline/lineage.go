package pipeline

import (
	"time"
)

// Lineage column names appended to every normalized table.
const (
	FieldSourceFile = "source_file"
	FieldIngestedAt = "ingested_at"
)

// ingestedAtFormat is ISO-8601 with second precision and an explicit UTC
// offset, fixed-width so lexicographic comparison orders timestamps.
const ingestedAtFormat = "2006-01-02T15:04:05-07:00"

// FormatIngestedAt renders an ingestion timestamp for the ingested_at column.
func FormatIngestedAt(at time.Time) string {
	return at.UTC().Format(ingestedAtFormat)
}

// TagLineage appends provenance to a canonical table: source_file carries the
// source identifier verbatim and ingested_at the given instant, identical for
// every row of the call. One ingestion event gets one timestamp; callers
// inject it so tests can pin it down.
func TagLineage(t Table, sourceName string, at time.Time) Table {
	stamp := FormatIngestedAt(at)
	out := NewTable(append(append([]string{}, t.Columns...), FieldSourceFile, FieldIngestedAt)...)
	for i := range t.Rows {
		row := make([]string, 0, len(out.Columns))
		for _, c := range t.Columns {
			row = append(row, t.Cell(i, c))
		}
		row = append(row, sourceName, stamp)
		out.Rows = append(out.Rows, row)
	}
	return out
}

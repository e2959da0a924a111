// Package csvio reads raw CSV exports into pipeline tables and writes
// pipeline tables back out as comma-delimited, UTF-8 text with a header row.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// Read parses CSV content into a Table. The first record is the header;
// header cells are trimmed. Input is decoded as UTF-8, falling back to
// Latin-1 when the bytes are not valid UTF-8, since several upstream systems
// still export ISO-8859-1.
func Read(r io.Reader) (pipeline.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return pipeline.Table{}, fmt.Errorf("read csv: %w", err)
	}
	return ReadBytes(data)
}

// ReadBytes parses CSV bytes into a Table. See Read.
func ReadBytes(data []byte) (pipeline.Table, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return pipeline.Table{}, fmt.Errorf("read csv: decode latin-1: %w", err)
		}
		data = decoded
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1 // tolerate ragged rows; short rows pad with nulls
	records, err := cr.ReadAll()
	if err != nil {
		return pipeline.Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return pipeline.Table{}, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	t := pipeline.NewTable(headers...)
	for _, rec := range records[1:] {
		t.AppendRow(rec...)
	}
	return t, nil
}

// ReadFile parses the CSV file at path into a Table.
func ReadFile(path string) (pipeline.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Table{}, fmt.Errorf("read csv file %q: %w", path, err)
	}
	return ReadBytes(data)
}

// Write renders a Table as CSV: header row first, then data rows.
func Write(w io.Writer, t pipeline.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Bytes renders a Table as in-memory CSV bytes.
func Bytes(t pipeline.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders a Table to the CSV file at path.
func WriteFile(path string, t pipeline.Table) error {
	data, err := Bytes(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write csv file %q: %w", path, err)
	}
	return nil
}

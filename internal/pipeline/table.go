package pipeline

// Table is the in-memory tabular value the pipeline stages pass between each
// other: an ordered set of named columns and rows of string cells. An empty
// cell represents null, matching what a CSV round-trip can express.
//
// Stages never mutate a Table they received; every stage builds a fresh one.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) Table {
	return Table{Columns: columns}
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the value at (row, column name), or "" when the column does
// not exist or the row is ragged.
func (t Table) Cell(row int, name string) string {
	i := t.ColumnIndex(name)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// NumRows returns the number of data rows.
func (t Table) NumRows() int {
	return len(t.Rows)
}

// AppendRow adds one row. Short rows are padded with empty cells so every
// row stays aligned with Columns.
func (t *Table) AppendRow(cells ...string) {
	row := make([]string, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// DropDuplicates returns a copy of t keeping only the first occurrence of
// each combination of values in the key columns. Rows are compared on their
// raw cell values. This is a caller policy, typically applied to bronze on
// (date, partner, amount) before validation.
func DropDuplicates(t Table, keys ...string) Table {
	out := NewTable(t.Columns...)
	seen := make(map[string]bool, len(t.Rows))
	for i := range t.Rows {
		k := rowKey(t, i, keys)
		if seen[k] {
			continue
		}
		seen[k] = true
		row := make([]string, len(t.Rows[i]))
		copy(row, t.Rows[i])
		out.Rows = append(out.Rows, row)
	}
	return out
}

// rowKey builds a composite key over the named columns for row i.
func rowKey(t Table, i int, keys []string) string {
	k := ""
	for _, name := range keys {
		k += t.Cell(i, name) + "\x1f"
	}
	return k
}

package pipeline

import (
	"strconv"
)

// BronzeColumns is the fixed bronze schema, in output order.
var BronzeColumns = []string{FieldDate, FieldPartner, FieldAmount, FieldSourceFile, FieldIngestedAt}

// Consolidate concatenates lineage-tagged tables into one bronze table.
// Row order is preserved across inputs. Schema columns absent from the union
// come out all-null, columns outside the schema are dropped, and date/amount
// cells are coerced: a date cell that does not parse as a date, or an amount
// cell that is not plain numeric, becomes null. An empty input list yields a
// zero-row table that still carries all five columns.
func Consolidate(tables []Table) Table {
	out := NewTable(BronzeColumns...)
	for _, t := range tables {
		for i := range t.Rows {
			row := make([]string, len(BronzeColumns))
			for j, col := range BronzeColumns {
				row[j] = coerceBronzeCell(col, t.Cell(i, col))
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func coerceBronzeCell(col, cell string) string {
	switch col {
	case FieldDate:
		d, ok := ParseDate(cell)
		if !ok {
			return ""
		}
		return d.Format(dateFormat)
	case FieldAmount:
		f, ok := parseNumeric(cell)
		if !ok {
			return ""
		}
		return FormatAmount(f)
	default:
		return cell
	}
}

// parseNumeric is the strict numeric coercion used from bronze onward.
// Locale-aware separator handling belongs to the Normalizer alone; by the
// time values reach bronze they are either canonical decimals or junk.
func parseNumeric(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

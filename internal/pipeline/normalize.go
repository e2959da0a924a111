package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NormalizationError reports a structural problem with a table or mapping,
// as opposed to malformed values, which degrade to null and surface later
// through validation counts.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "normalize: " + e.Reason
}

const dateFormat = "2006-01-02"

var (
	nonAmountChars = regexp.MustCompile(`[^0-9\-,.]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	slashDate      = regexp.MustCompile(`^\d{1,2}/\d{1,2}/(\d{2}|\d{4})$`)
)

// Normalize reshapes a raw table into the canonical schema
// (date, partner, amount), preserving row count and order.
// Columns are renamed per mapping (source header → canonical field); any
// canonical field the mapping does not produce comes out all-null, and
// non-canonical columns are dropped. Dates and amounts are parsed into
// canonical renderings (ISO date, plain decimal); values that fail to parse
// become null. Partner text is trimmed and internal whitespace collapsed.
func Normalize(t Table, mapping map[string]string) (Table, error) {
	if len(t.Columns) == 0 {
		return Table{}, &NormalizationError{Reason: "empty table: no columns"}
	}
	sources := make(map[string]string, len(mapping)) // canonical field → source header
	for src, field := range mapping {
		switch field {
		case FieldDate, FieldPartner, FieldAmount:
		default:
			return Table{}, &NormalizationError{Reason: fmt.Sprintf("mapping target %q is not a canonical field", field)}
		}
		if prev, ok := sources[field]; ok {
			return Table{}, &NormalizationError{Reason: fmt.Sprintf("both %q and %q map to %q", prev, src, field)}
		}
		sources[field] = src
	}

	out := NewTable(CanonicalFields...)
	for i := range t.Rows {
		row := make([]string, len(CanonicalFields))
		if src, ok := sources[FieldDate]; ok {
			if d, valid := ParseDate(t.Cell(i, src)); valid {
				row[0] = d.Format(dateFormat)
			}
		}
		if src, ok := sources[FieldPartner]; ok {
			row[1] = CleanPartner(t.Cell(i, src))
		}
		if src, ok := sources[FieldAmount]; ok {
			if f, valid := ParseAmount(t.Cell(i, src)); valid {
				row[2] = FormatAmount(f)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// ParseAmount converts messy European/mixed monetary text to a number.
// Examples that parse: "1.234,56", "1,234.56", "€1.234,56", "- 2.500",
// "2500", "2,5". The separator rule, in priority order:
//   - both '.' and ',' present: ',' is the decimal separator, so every '.'
//     is removed and the ',' becomes '.'
//   - only ',' present: it is the decimal separator
//   - only '.' or neither: the text is left as is
//
// Currency symbols, codes and whitespace are stripped first. Returns
// ok=false for empty or unparseable input; nothing here ever errors.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "EUR", "")
	s = whitespaceRun.ReplaceAllString(s, "")
	s = nonAmountChars.ReplaceAllString(s, "")

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatAmount renders an amount the way exports expect it: '.' as decimal
// point, no thousands separators, no trailing zeros.
func FormatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// primaryDateLayouts is the general-purpose inference chain tried first.
// Slash-delimited day/month dates are deliberately absent: they are
// ambiguous and handled by the day-first retry below.
var primaryDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02-01-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// dayFirstLayouts interpret slash-delimited numeric dates as day/month/year.
var dayFirstLayouts = []string{
	"2/1/2006",
	"02/01/2006",
	"2/1/06",
}

// monthFirstLayouts are the last resort for slash dates the day-first
// interpretation rejects (day position > 12).
var monthFirstLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
}

// ParseDate parses free-form date text to a calendar date (midnight UTC,
// time of day discarded). General-purpose inference runs first; values
// matching a slash-delimited numeric pattern then get a day-before-month
// retry, so "05/03/2024" resolves to 5 March. Returns ok=false when nothing
// matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range primaryDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return midnight(d), true
		}
	}
	if slashDate.MatchString(s) {
		for _, layout := range dayFirstLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return midnight(d), true
			}
		}
		for _, layout := range monthFirstLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return midnight(d), true
			}
		}
	}
	return time.Time{}, false
}

func midnight(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// CleanPartner trims leading/trailing whitespace and collapses internal
// whitespace runs to a single space.
func CleanPartner(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

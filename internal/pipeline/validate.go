package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValidateOptions configures the rule set evaluated by Validate.
// MinDate/MaxDate, when set, bound the parsed dates (inclusive).
type ValidateOptions struct {
	MinDate         *time.Time
	MaxDate         *time.Time
	CheckDuplicates bool
}

// DefaultValidateOptions enables the duplicate check and no date bounds.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{CheckDuplicates: true}
}

// Validate evaluates the data-quality rules against a bronze-shaped table
// and returns human-readable violation messages; an empty slice means pass.
// A missing canonical column is structural and short-circuits the remaining
// rules, since value-level counts over a half-present schema would mislead.
func Validate(t Table, opts ValidateOptions) []string {
	var violations []string

	var missing []string
	for _, col := range CanonicalFields {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return []string{fmt.Sprintf("missing canonical columns: %s", strings.Join(missing, ", "))}
	}

	var badDates, badAmounts, negatives, belowMin, aboveMax int
	for i := range t.Rows {
		d, dateOK := ParseDate(t.Cell(i, FieldDate))
		if !dateOK {
			badDates++
		}
		f, numOK := parseNumeric(t.Cell(i, FieldAmount))
		if !numOK {
			badAmounts++
		} else if f < 0 {
			negatives++
		}
		if dateOK {
			if opts.MinDate != nil && d.Before(*opts.MinDate) {
				belowMin++
			}
			if opts.MaxDate != nil && d.After(*opts.MaxDate) {
				aboveMax++
			}
		}
	}

	if badDates > 0 {
		violations = append(violations, fmt.Sprintf("date not parseable in %d rows", badDates))
	}
	if badAmounts > 0 {
		violations = append(violations, fmt.Sprintf("amount not numeric in %d rows", badAmounts))
	}
	if negatives > 0 {
		violations = append(violations, fmt.Sprintf("amount negative in %d rows", negatives))
	}
	if opts.MinDate != nil && belowMin > 0 {
		violations = append(violations, fmt.Sprintf("dates before %s: %d", opts.MinDate.Format(dateFormat), belowMin))
	}
	if opts.MaxDate != nil && aboveMax > 0 {
		violations = append(violations, fmt.Sprintf("dates after %s: %d", opts.MaxDate.Format(dateFormat), aboveMax))
	}

	if opts.CheckDuplicates {
		seen := make(map[string]bool, len(t.Rows))
		dups := 0
		for i := range t.Rows {
			k := rowKey(t, i, CanonicalFields)
			if seen[k] {
				dups++
			}
			seen[k] = true
		}
		if dups > 0 {
			violations = append(violations, fmt.Sprintf("duplicates by (date, partner, amount): %d", dups))
		}
	}

	return violations
}

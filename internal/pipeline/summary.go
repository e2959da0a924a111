package pipeline

import (
	"sort"

	"github.com/dvloznov/csv-warehouse/internal/domain"
)

// Summarize computes the headline KPIs over a bronze table: total amount
// (null when no amount is numeric), distinct non-null partner count, and the
// min/max parsed date (nil when no date parses).
func Summarize(bronze Table) domain.Summary {
	var total nullableSum
	partners := make(map[string]bool)

	s := domain.Summary{}
	for i := range bronze.Rows {
		if f, ok := parseNumeric(bronze.Cell(i, FieldAmount)); ok {
			v := f
			total.add(&v)
		}
		if p := bronze.Cell(i, FieldPartner); p != "" {
			partners[p] = true
		}
		if d, ok := ParseDate(bronze.Cell(i, FieldDate)); ok {
			if s.MinDate == nil || d.Before(*s.MinDate) {
				dd := d
				s.MinDate = &dd
			}
			if s.MaxDate == nil || d.After(*s.MaxDate) {
				dd := d
				s.MaxDate = &dd
			}
		}
	}
	s.TotalAmount = total.value()
	s.UniquePartners = len(partners)
	return s
}

// MonthlyTrend re-groups silver by month alone, summing amounts with the
// same null propagation, sorted by month ascending.
func MonthlyTrend(s Silver) []domain.MonthTotal {
	totals := make(map[string]*nullableSum)
	months := make(map[string]domain.MonthTotal)
	for _, r := range s.Rows {
		k := r.Month.Format(dateFormat)
		if _, ok := totals[k]; !ok {
			totals[k] = &nullableSum{}
			months[k] = domain.MonthTotal{Month: r.Month}
		}
		totals[k].add(r.Amount)
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.MonthTotal, 0, len(keys))
	for _, k := range keys {
		m := months[k]
		m.Amount = totals[k].value()
		out = append(out, m)
	}
	return out
}

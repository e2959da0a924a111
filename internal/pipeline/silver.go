package pipeline

import (
	"time"

	"github.com/dvloznov/csv-warehouse/internal/domain"
)

// Silver is the monthly partner aggregate derived from bronze.
type Silver struct {
	Rows []domain.SilverRow
}

// nullableSum accumulates the null-propagating sum: the total is null until
// the first non-null value arrives, after which nulls are ignored.
type nullableSum struct {
	sum  float64
	seen bool
}

func (n *nullableSum) add(v *float64) {
	if v == nil {
		return
	}
	n.sum += *v
	n.seen = true
}

func (n *nullableSum) value() *float64 {
	if !n.seen {
		return nil
	}
	v := n.sum
	return &v
}

// ToSilver groups bronze rows by (partner, calendar month) and sums amounts.
// The month key is the first day of the month containing date. Rows whose
// partner or date is null carry no usable group key and are excluded.
// Groups come out in discovery order.
func ToSilver(bronze Table) Silver {
	type group struct {
		index int
		total nullableSum
	}
	groups := make(map[string]*group)
	var s Silver

	for i := range bronze.Rows {
		partner := bronze.Cell(i, FieldPartner)
		d, ok := ParseDate(bronze.Cell(i, FieldDate))
		if partner == "" || !ok {
			continue
		}
		month := monthStart(d)

		k := partner + "\x1f" + month.Format(dateFormat)
		g, exists := groups[k]
		if !exists {
			g = &group{index: len(s.Rows)}
			groups[k] = g
			s.Rows = append(s.Rows, domain.SilverRow{Partner: partner, Month: month})
		}
		var amount *float64
		if f, numOK := parseNumeric(bronze.Cell(i, FieldAmount)); numOK {
			amount = &f
		}
		g.total.add(amount)
		s.Rows[g.index].Amount = g.total.value()
	}
	return s
}

// Table renders silver for export: partner, month, amount.
func (s Silver) Table() Table {
	out := NewTable(FieldPartner, "month", FieldAmount)
	for _, r := range s.Rows {
		amount := ""
		if r.Amount != nil {
			amount = FormatAmount(*r.Amount)
		}
		out.AppendRow(r.Partner, r.Month.Format(dateFormat), amount)
	}
	return out
}

func monthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

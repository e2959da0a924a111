package pipeline

import (
	"sort"
	"strings"

	"github.com/dvloznov/csv-warehouse/internal/domain"
)

// Gold is the reporting rollup: silver totals enriched with ingestion lineage.
type Gold struct {
	Rows []domain.GoldRow
}

// GoldColumns is the gold export schema, in output order.
var GoldColumns = []string{FieldPartner, "month", "amount_total", "last_update", "sources"}

// ToGold re-aggregates silver by (partner, month) and joins ingestion lineage
// derived independently from bronze: last_update is the maximum ingested_at in
// the matching bronze group and sources the sorted, deduplicated source files
// joined with "|". The join is a left join from silver; a key with no bronze
// lineage group keeps its row with empty lineage fields rather than being
// dropped. Empty silver yields empty gold.
func ToGold(s Silver, bronze Table) Gold {
	var g Gold
	if len(s.Rows) == 0 {
		return g
	}

	// Re-group silver; amount_total is recomputed, not copied.
	type group struct {
		index int
		total nullableSum
	}
	groups := make(map[string]*group)
	for _, r := range s.Rows {
		k := r.Partner + "\x1f" + r.Month.Format(dateFormat)
		grp, exists := groups[k]
		if !exists {
			grp = &group{index: len(g.Rows)}
			groups[k] = grp
			g.Rows = append(g.Rows, domain.GoldRow{Partner: r.Partner, Month: r.Month})
		}
		grp.total.add(r.Amount)
		g.Rows[grp.index].AmountTotal = grp.total.value()
	}

	// Lineage per (partner, month), straight from bronze.
	type lineage struct {
		lastUpdate string
		sources    map[string]bool
	}
	lineages := make(map[string]*lineage)
	for i := range bronze.Rows {
		partner := bronze.Cell(i, FieldPartner)
		d, ok := ParseDate(bronze.Cell(i, FieldDate))
		if partner == "" || !ok {
			continue
		}
		k := partner + "\x1f" + monthStart(d).Format(dateFormat)
		l, exists := lineages[k]
		if !exists {
			l = &lineage{sources: make(map[string]bool)}
			lineages[k] = l
		}
		if at := bronze.Cell(i, FieldIngestedAt); at > l.lastUpdate {
			l.lastUpdate = at
		}
		if src := bronze.Cell(i, FieldSourceFile); src != "" {
			l.sources[src] = true
		}
	}

	for i := range g.Rows {
		k := g.Rows[i].Partner + "\x1f" + g.Rows[i].Month.Format(dateFormat)
		l, ok := lineages[k]
		if !ok {
			continue
		}
		names := make([]string, 0, len(l.sources))
		for src := range l.sources {
			names = append(names, src)
		}
		sort.Strings(names)
		g.Rows[i].LastUpdate = l.lastUpdate
		g.Rows[i].Sources = strings.Join(names, "|")
	}
	return g
}

// Table renders gold for export; the schema is emitted even when empty.
func (g Gold) Table() Table {
	out := NewTable(GoldColumns...)
	for _, r := range g.Rows {
		amount := ""
		if r.AmountTotal != nil {
			amount = FormatAmount(*r.AmountTotal)
		}
		out.AppendRow(r.Partner, r.Month.Format(dateFormat), amount, r.LastUpdate, r.Sources)
	}
	return out
}

package pipeline

import (
	"testing"

	"github.com/dvloznov/csv-warehouse/internal/domain"
)

func TestToGold_EmptySilver(t *testing.T) {
	g := ToGold(Silver{}, bronzeTable())
	if len(g.Rows) != 0 {
		t.Errorf("ToGold(empty) produced %d rows, want 0", len(g.Rows))
	}

	tbl := g.Table()
	if len(tbl.Columns) != len(GoldColumns) {
		t.Errorf("empty gold table columns = %v, want %v", tbl.Columns, GoldColumns)
	}
}

func TestToGold_LineageJoin(t *testing.T) {
	bronze := bronzeTable(
		[]string{"2024-01-05", "ACME", "10", "b.csv", "2024-05-01T10:00:02+00:00"},
		[]string{"2024-01-20", "ACME", "5.5", "a.csv", "2024-05-01T10:00:01+00:00"},
		[]string{"2024-02-01", "Beta", "7", "a.csv", "2024-05-01T10:00:01+00:00"},
	)
	s := ToSilver(bronze)

	g := ToGold(s, bronze)

	if len(g.Rows) != 2 {
		t.Fatalf("ToGold() produced %d rows, want 2", len(g.Rows))
	}

	acme := g.Rows[0]
	if acme.Partner != "ACME" || !acme.Month.Equal(date(2024, 1, 1)) {
		t.Fatalf("row 0 = %s/%v", acme.Partner, acme.Month)
	}
	if acme.AmountTotal == nil || *acme.AmountTotal != 15.5 {
		t.Errorf("ACME total = %v, want 15.5", acme.AmountTotal)
	}
	if acme.LastUpdate != "2024-05-01T10:00:02+00:00" {
		t.Errorf("ACME last_update = %q, want the max ingested_at", acme.LastUpdate)
	}
	// Sources are deduplicated and sorted, not in arrival order.
	if acme.Sources != "a.csv|b.csv" {
		t.Errorf("ACME sources = %q, want a.csv|b.csv", acme.Sources)
	}

	beta := g.Rows[1]
	if beta.Sources != "a.csv" || beta.LastUpdate != "2024-05-01T10:00:01+00:00" {
		t.Errorf("Beta lineage = %q/%q", beta.Sources, beta.LastUpdate)
	}
}

func TestToGold_JoinMissKeepsRow(t *testing.T) {
	// Silver row with no matching bronze lineage group: the row survives
	// with empty lineage fields.
	amount := 10.0
	s := Silver{Rows: []domain.SilverRow{
		{Partner: "Ghost", Month: date(2024, 1, 1), Amount: &amount},
	}}

	g := ToGold(s, bronzeTable())

	if len(g.Rows) != 1 {
		t.Fatalf("ToGold() produced %d rows, want 1", len(g.Rows))
	}
	r := g.Rows[0]
	if r.AmountTotal == nil || *r.AmountTotal != 10 {
		t.Errorf("amount_total = %v, want 10", r.AmountTotal)
	}
	if r.LastUpdate != "" || r.Sources != "" {
		t.Errorf("lineage = %q/%q, want empty", r.LastUpdate, r.Sources)
	}
}

func TestGoldTable(t *testing.T) {
	bronze := bronzeTable(
		[]string{"2024-01-05", "ACME", "10", "a.csv", "2024-05-01T10:00:00+00:00"},
	)
	g := ToGold(ToSilver(bronze), bronze)

	tbl := g.Table()

	if tbl.Cell(0, "amount_total") != "10" {
		t.Errorf("amount_total cell = %q, want 10", tbl.Cell(0, "amount_total"))
	}
	if tbl.Cell(0, "month") != "2024-01-01" {
		t.Errorf("month cell = %q, want 2024-01-01", tbl.Cell(0, "month"))
	}
	if tbl.Cell(0, "sources") != "a.csv" {
		t.Errorf("sources cell = %q, want a.csv", tbl.Cell(0, "sources"))
	}
}

package pipeline_test

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/dvloznov/csv-warehouse/internal/logger"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// fixedClock hands out strictly increasing timestamps one second apart so
// each file gets a distinct ingestion instant.
func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func TestRunner_EndToEnd(t *testing.T) {
	spanish := pipeline.Source{
		Name: "ventas_es.csv",
		Table: pipeline.Table{
			Columns: []string{"fecha", "cliente", "importe"},
			Rows: [][]string{
				{"05/03/2024", "ACME  Corp", "1.234,56"},
				{"20/03/2024", "ACME Corp", "100"},
				{"02/04/2024", "Beta SL", "2,5"},
			},
		},
	}
	english := pipeline.Source{
		Name: "sales_us.csv",
		Table: pipeline.Table{
			Columns: []string{"date", "partner", "amount", "notes"},
			Rows: [][]string{
				{"2024-03-10", "ACME Corp", "1.000,44", "wire"},
			},
		},
	}

	runner := pipeline.NewRunner()
	runner.Now = fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	result, err := runner.Run(testContext(), []pipeline.Source{spanish, english}, pipeline.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.RunID == "" {
		t.Error("Run() produced no run ID")
	}
	if !result.Passed() {
		t.Fatalf("Run() violations = %v, want none", result.Violations)
	}
	if result.BronzeRows != 4 {
		t.Errorf("bronze rows = %d, want 4", result.BronzeRows)
	}

	// File reports reflect the per-file mapping.
	if len(result.Files) != 2 {
		t.Fatalf("file reports = %d, want 2", len(result.Files))
	}
	if got := result.Files[0].Mapping["cliente"]; got != "partner" {
		t.Errorf("spanish mapping cliente = %q, want partner", got)
	}
	if result.Files[1].Rows != 1 {
		t.Errorf("english file rows = %d, want 1", result.Files[1].Rows)
	}

	// Both files land in March for ACME: locale amounts are already decoded.
	var acmeMarch *float64
	for _, r := range result.Silver.Rows {
		if r.Partner == "ACME Corp" && r.Month.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			acmeMarch = r.Amount
		}
	}
	if acmeMarch == nil || math.Abs(*acmeMarch-2335.0) > 1e-9 {
		t.Errorf("ACME March total = %v, want 2335.00", acmeMarch)
	}

	// Gold lineage spans both source files for the shared group.
	var acmeSources string
	for _, r := range result.Gold.Rows {
		if r.Partner == "ACME Corp" && r.Month.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			acmeSources = r.Sources
		}
	}
	if acmeSources != "sales_us.csv|ventas_es.csv" {
		t.Errorf("ACME March sources = %q", acmeSources)
	}

	// KPIs come from bronze.
	if result.Summary.UniquePartners != 2 {
		t.Errorf("unique partners = %d, want 2", result.Summary.UniquePartners)
	}
	if len(result.Trend) != 2 {
		t.Errorf("trend points = %d, want 2 (March, April)", len(result.Trend))
	}
}

func TestRunner_ValidationGate(t *testing.T) {
	src := pipeline.Source{
		Name: "sales.csv",
		Table: pipeline.Table{
			Columns: []string{"date", "partner", "amount"},
			Rows: [][]string{
				{"2024-03-05", "ACME", "-10"},
			},
		},
	}

	result, err := pipeline.NewRunner().Run(testContext(), []pipeline.Source{src}, pipeline.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Passed() {
		t.Fatal("expected a negative-amount violation")
	}
	if len(result.Silver.Rows) != 0 || len(result.Gold.Rows) != 0 {
		t.Error("silver/gold must not be produced when validation fails")
	}
	// Bronze is still there for inspection.
	if result.BronzeRows != 1 {
		t.Errorf("bronze rows = %d, want 1", result.BronzeRows)
	}
}

func TestRunner_AutoCleanAndDedupe(t *testing.T) {
	src := pipeline.Source{
		Name: "sales.csv",
		Table: pipeline.Table{
			Columns: []string{"date", "partner", "amount"},
			Rows: [][]string{
				{"2024-03-05", "ACME", "10"},
				{"2024-03-05", "ACME", "10"},  // duplicate
				{"junk", "ACME", "10"},        // bad date, cleaned
				{"2024-03-06", "ACME", "n/a"}, // bad amount, cleaned
			},
		},
	}

	result, err := pipeline.NewRunner().Run(testContext(), []pipeline.Source{src}, pipeline.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Passed() {
		t.Fatalf("Run() violations = %v, want none after cleanup", result.Violations)
	}
	if result.BronzeRows != 1 {
		t.Errorf("bronze rows = %d, want 1 after dedupe and clean", result.BronzeRows)
	}
}

func TestRunner_StructuralFailureAborts(t *testing.T) {
	src := pipeline.Source{Name: "empty.csv", Table: pipeline.Table{}}

	_, err := pipeline.NewRunner().Run(testContext(), []pipeline.Source{src}, pipeline.DefaultRunOptions())
	if err == nil {
		t.Fatal("Run() expected error for an empty table")
	}
}

func TestRunner_PinnedRunID(t *testing.T) {
	runner := pipeline.NewRunner()
	runner.RunID = "pinned"

	src := pipeline.Source{
		Name: "sales.csv",
		Table: pipeline.Table{
			Columns: []string{"date", "partner", "amount"},
			Rows:    [][]string{{"2024-03-05", "ACME", "10"}},
		},
	}
	result, err := runner.Run(testContext(), []pipeline.Source{src}, pipeline.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RunID != "pinned" {
		t.Errorf("RunID = %q, want pinned", result.RunID)
	}
}

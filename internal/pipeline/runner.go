package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/csv-warehouse/internal/domain"
	"github.com/dvloznov/csv-warehouse/internal/logger"
)

// Source is one raw input to a pipeline run: a logical name (usually the
// file name) and the raw table parsed from it.
type Source struct {
	Name  string
	Table Table
}

// RunOptions configures one pipeline run.
type RunOptions struct {
	// Mapping controls header auto-detection. Zero value means
	// DefaultMappingConfig().
	Mapping MappingConfig

	// Validation bounds and toggles, passed through to Validate.
	MinDate         *time.Time
	MaxDate         *time.Time
	CheckDuplicates bool

	// Dedupe drops exact bronze duplicates on (date, partner, amount)
	// before validation.
	Dedupe bool

	// AutoClean drops bronze rows whose date or amount is null before
	// validation, mirroring the operator-facing cleanup switch.
	AutoClean bool
}

// DefaultRunOptions enables dedup, auto-clean and the duplicate check.
func DefaultRunOptions() RunOptions {
	return RunOptions{CheckDuplicates: true, Dedupe: true, AutoClean: true}
}

// RunResult carries every tier produced by a run. Silver, Gold and Summary
// are only populated when Violations is empty: validation gates aggregation.
type RunResult struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	Files      []domain.FileReport `json:"files"`
	Bronze     Table               `json:"-"`
	BronzeRows int                 `json:"bronze_rows"`
	Violations []string            `json:"violations"`
	Silver     Silver              `json:"-"`
	Gold       Gold                `json:"-"`
	Summary    domain.Summary      `json:"summary"`
	Trend      []domain.MonthTotal `json:"trend,omitempty"`
}

// Passed reports whether validation found no violations.
func (r *RunResult) Passed() bool {
	return len(r.Violations) == 0
}

// Runner executes the full bronze → silver → gold pipeline over a set of
// sources. Now is the injectable clock used for ingestion timestamps. RunID,
// when set, pins the next run's ID; callers use this to register a run with
// the warehouse before executing it.
type Runner struct {
	Now   func() time.Time
	RunID string
}

// NewRunner returns a Runner on the wall clock.
func NewRunner() *Runner {
	return &Runner{Now: time.Now}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run processes sources strictly in order: map, normalize and tag per file,
// then consolidate, optional dedup/clean, and validate. Silver, gold and the
// KPIs are only produced when validation passes. Structural normalization
// failures abort the run; data-quality problems land in RunResult.Violations
// instead.
func (r *Runner) Run(ctx context.Context, sources []Source, opts RunOptions) (*RunResult, error) {
	log := logger.FromContext(ctx)

	if opts.Mapping.Synonyms == nil {
		opts.Mapping.Synonyms = DefaultMappingConfig().Synonyms
	}

	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &RunResult{
		RunID:     runID,
		StartedAt: r.Now().UTC(),
	}

	tagged := make([]Table, 0, len(sources))
	for _, src := range sources {
		mapping, missing := MapColumns(src.Table.Columns, opts.Mapping)
		if len(missing) > 0 {
			log.Warn().
				Str("source", src.Name).
				Strs("missing_fields", missing).
				Msg("Some canonical fields could not be mapped")
		}

		normalized, err := Normalize(src.Table, mapping)
		if err != nil {
			return nil, fmt.Errorf("run %s: source %q: %w", result.RunID, src.Name, err)
		}

		tagged = append(tagged, TagLineage(normalized, src.Name, r.Now()))
		result.Files = append(result.Files, domain.FileReport{
			Name:    src.Name,
			Mapping: mapping,
			Missing: missing,
			Rows:    normalized.NumRows(),
		})
	}

	bronze := Consolidate(tagged)
	if opts.Dedupe {
		bronze = DropDuplicates(bronze, FieldDate, FieldPartner, FieldAmount)
	}
	if opts.AutoClean {
		bronze = dropInvalidRows(bronze)
	}
	result.Bronze = bronze
	result.BronzeRows = bronze.NumRows()

	result.Violations = Validate(bronze, ValidateOptions{
		MinDate:         opts.MinDate,
		MaxDate:         opts.MaxDate,
		CheckDuplicates: opts.CheckDuplicates,
	})
	if !result.Passed() {
		log.Warn().
			Str("run_id", result.RunID).
			Int("violations", len(result.Violations)).
			Msg("Validation failed; skipping silver and gold")
		return result, nil
	}

	result.Silver = ToSilver(bronze)
	result.Gold = ToGold(result.Silver, bronze)
	result.Summary = Summarize(bronze)
	result.Trend = MonthlyTrend(result.Silver)

	log.Info().
		Str("run_id", result.RunID).
		Int("sources", len(sources)).
		Int("bronze_rows", bronze.NumRows()).
		Int("silver_rows", len(result.Silver.Rows)).
		Int("gold_rows", len(result.Gold.Rows)).
		Msg("Pipeline run completed")

	return result, nil
}

// dropInvalidRows removes bronze rows whose date or amount is null.
func dropInvalidRows(bronze Table) Table {
	out := NewTable(bronze.Columns...)
	for i := range bronze.Rows {
		if _, ok := ParseDate(bronze.Cell(i, FieldDate)); !ok {
			continue
		}
		if _, ok := parseNumeric(bronze.Cell(i, FieldAmount)); !ok {
			continue
		}
		row := make([]string, len(bronze.Rows[i]))
		copy(row, bronze.Rows[i])
		out.Rows = append(out.Rows, row)
	}
	return out
}

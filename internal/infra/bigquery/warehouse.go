// Package bigquery loads pipeline outputs into a BigQuery dataset. The
// pipeline itself is in-memory and recomputes every run; this sink stores
// outputs for reporting, never intermediate state.
package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// Warehouse wraps a BigQuery client scoped to one project/dataset.
type Warehouse struct {
	client  *bigquery.Client
	dataset string
}

// NewWarehouse creates a warehouse sink for projectID/dataset.
func NewWarehouse(ctx context.Context, projectID, dataset string) (*Warehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: bigquery client: %w", err)
	}
	return &Warehouse{client: client, dataset: dataset}, nil
}

// Close closes the underlying client.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// LoadResult inserts every tier of a completed run: bronze always, silver and
// gold only when the run passed validation.
func (w *Warehouse) LoadResult(ctx context.Context, result *pipeline.RunResult) error {
	if err := w.InsertBronze(ctx, result.RunID, result.Bronze); err != nil {
		return err
	}
	if !result.Passed() {
		return nil
	}
	if err := w.InsertSilver(ctx, result.RunID, result.Silver); err != nil {
		return err
	}
	return w.InsertGold(ctx, result.RunID, result.Gold)
}

// InsertBronze batch-inserts a bronze table.
func (w *Warehouse) InsertBronze(ctx context.Context, runID string, bronze pipeline.Table) error {
	rows := make([]*BronzeRow, 0, bronze.NumRows())
	for i := range bronze.Rows {
		row := &BronzeRow{
			RunID:      runID,
			SourceFile: bronze.Cell(i, pipeline.FieldSourceFile),
		}
		if d, ok := pipeline.ParseDate(bronze.Cell(i, pipeline.FieldDate)); ok {
			row.Date = bigquery.NullDate{Date: civil.DateOf(d), Valid: true}
		}
		if p := bronze.Cell(i, pipeline.FieldPartner); p != "" {
			row.Partner = bigquery.NullString{StringVal: p, Valid: true}
		}
		if cell := bronze.Cell(i, pipeline.FieldAmount); cell != "" {
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				row.Amount = bigquery.NullFloat64{Float64: f, Valid: true}
			}
		}
		if at, err := time.Parse(time.RFC3339, bronze.Cell(i, pipeline.FieldIngestedAt)); err == nil {
			row.IngestedAt = at.UTC()
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return w.put(ctx, BronzeTable, rows)
}

// InsertSilver batch-inserts silver aggregates.
func (w *Warehouse) InsertSilver(ctx context.Context, runID string, silver pipeline.Silver) error {
	rows := make([]*SilverRow, 0, len(silver.Rows))
	for _, r := range silver.Rows {
		row := &SilverRow{
			RunID:   runID,
			Partner: r.Partner,
			Month:   civil.DateOf(r.Month),
		}
		if r.Amount != nil {
			row.Amount = bigquery.NullFloat64{Float64: *r.Amount, Valid: true}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return w.put(ctx, SilverTable, rows)
}

// InsertGold batch-inserts gold rollups.
func (w *Warehouse) InsertGold(ctx context.Context, runID string, gold pipeline.Gold) error {
	rows := make([]*GoldRow, 0, len(gold.Rows))
	for _, r := range gold.Rows {
		row := &GoldRow{
			RunID:   runID,
			Partner: r.Partner,
			Month:   civil.DateOf(r.Month),
			Sources: r.Sources,
		}
		if r.AmountTotal != nil {
			row.AmountTotal = bigquery.NullFloat64{Float64: *r.AmountTotal, Valid: true}
		}
		if r.LastUpdate != "" {
			if at, err := time.Parse(time.RFC3339, r.LastUpdate); err == nil {
				row.LastUpdate = bigquery.NullTimestamp{Timestamp: at.UTC(), Valid: true}
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return w.put(ctx, GoldTable, rows)
}

func (w *Warehouse) put(ctx context.Context, table string, rows interface{}) error {
	inserter := w.client.Dataset(w.dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("insert into %s.%s: %w", w.dataset, table, err)
	}
	return nil
}

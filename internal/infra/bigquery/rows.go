package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// Warehouse table names inside the dataset.
const (
	BronzeTable        = "bronze"
	SilverTable        = "silver"
	GoldTable          = "gold"
	IngestionRunsTable = "ingestion_runs"
)

// BronzeRow mirrors the bronze schema one-to-one; all three canonical fields
// are nullable, lineage fields are not.
type BronzeRow struct {
	RunID      string               `bigquery:"run_id"`
	Date       bigquery.NullDate    `bigquery:"date"`
	Partner    bigquery.NullString  `bigquery:"partner"`
	Amount     bigquery.NullFloat64 `bigquery:"amount"`
	SourceFile string               `bigquery:"source_file"`
	IngestedAt time.Time            `bigquery:"ingested_at"`
}

// SilverRow is one (partner, month) aggregate.
type SilverRow struct {
	RunID   string               `bigquery:"run_id"`
	Partner string               `bigquery:"partner"`
	Month   civil.Date           `bigquery:"month"`
	Amount  bigquery.NullFloat64 `bigquery:"amount"`
}

// GoldRow is one reporting row with lineage. LastUpdate is null only when the
// lineage join found no bronze group for the key.
type GoldRow struct {
	RunID       string                 `bigquery:"run_id"`
	Partner     string                 `bigquery:"partner"`
	Month       civil.Date             `bigquery:"month"`
	AmountTotal bigquery.NullFloat64   `bigquery:"amount_total"`
	LastUpdate  bigquery.NullTimestamp `bigquery:"last_update"`
	Sources     string                 `bigquery:"sources"`
}

// IngestionRunRow tracks one pipeline run in the warehouse.
type IngestionRunRow struct {
	RunID       string                 `bigquery:"run_id"`
	StartedAt   time.Time              `bigquery:"started_ts"`
	FinishedAt  bigquery.NullTimestamp `bigquery:"finished_ts"`
	SourceCount int64                  `bigquery:"source_count"`
	BronzeRows  int64                  `bigquery:"bronze_rows"`
	Violations  bigquery.NullInt64     `bigquery:"violations"`
	Status      string                 `bigquery:"status"`
	ErrorMsg    string                 `bigquery:"error_message"`
}

package domain

import (
	"time"
)

// SilverRow is one (partner, month) aggregate produced from bronze.
// Month is the first calendar day of the month. Amount is nil when every
// contributing bronze amount was null.
type SilverRow struct {
	Partner string    `json:"partner"`
	Month   time.Time `json:"month"`
	Amount  *float64  `json:"amount"`
}

// GoldRow is a silver aggregate enriched with ingestion lineage.
// AmountTotal is recomputed from silver, not copied. LastUpdate is the
// maximum ingested_at among contributing bronze rows (ISO-8601, UTC) and
// Sources the sorted, deduplicated source identifiers joined with "|".
// Both are empty when the lineage join found no bronze group for the key.
type GoldRow struct {
	Partner     string    `json:"partner"`
	Month       time.Time `json:"month"`
	AmountTotal *float64  `json:"amount_total"`
	LastUpdate  string    `json:"last_update"`
	Sources     string    `json:"sources"`
}

// MonthTotal is one point of the monthly trend (silver re-grouped by month).
type MonthTotal struct {
	Month  time.Time `json:"month"`
	Amount *float64  `json:"amount"`
}

// Summary holds the headline KPIs computed over a bronze table.
// TotalAmount is nil when no amount parsed as numeric; MinDate/MaxDate are
// nil when no date parsed.
type Summary struct {
	TotalAmount    *float64   `json:"total_amount"`
	UniquePartners int        `json:"unique_partners"`
	MinDate        *time.Time `json:"min_date"`
	MaxDate        *time.Time `json:"max_date"`
}

// FileReport describes how one source file was mapped into the canonical
// schema: the resolved header mapping, the canonical fields that stayed
// unmapped (a warning, not an error) and the row count contributed.
type FileReport struct {
	Name    string            `json:"name"`
	Mapping map[string]string `json:"mapping"`
	Missing []string          `json:"missing,omitempty"`
	Rows    int               `json:"rows"`
}

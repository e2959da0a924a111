package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/csv-warehouse/internal/csvio"
	"github.com/dvloznov/csv-warehouse/internal/gcstore"
	infraBQ "github.com/dvloznov/csv-warehouse/internal/infra/bigquery"
	"github.com/dvloznov/csv-warehouse/internal/logger"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	var (
		outDir   = flag.String("out", "data/output", "Directory for bronze/silver/gold CSVs and the run report")
		bucket   = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket to upload artifacts to under runs/<run-id>/ (or set GCS_BUCKET env); empty disables upload")
		project  = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project for BigQuery loads (or set GCP_PROJECT env); empty disables loading")
		dataset  = flag.String("dataset", envOr("BQ_DATASET", "csv_warehouse"), "BigQuery dataset name (or set BQ_DATASET env)")
		minDate  = flag.String("min-date", "", "Reject dates before this ISO date (e.g. 2020-01-01)")
		maxDate  = flag.String("max-date", "", "Reject dates after this ISO date")
		noDedupe = flag.Bool("no-dedupe", false, "Keep exact duplicate rows in bronze")
		noClean  = flag.Bool("no-clean", false, "Keep rows with null date or amount instead of dropping them before validation")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal().Msg("Error: at least one input CSV is required (local path or gs:// URI)")
	}

	// Create context with timeout so the CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	opts := pipeline.DefaultRunOptions()
	opts.Dedupe = !*noDedupe
	opts.AutoClean = !*noClean
	var err error
	if opts.MinDate, err = parseDateFlag(*minDate); err != nil {
		log.Fatal().Err(err).Msg("Invalid -min-date")
	}
	if opts.MaxDate, err = parseDateFlag(*maxDate); err != nil {
		log.Fatal().Err(err).Msg("Invalid -max-date")
	}

	sources, err := loadSources(ctx, flag.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load inputs")
	}

	log.Info().Int("files", len(sources)).Msg("Starting ingestion")

	var warehouse *infraBQ.Warehouse
	if *project != "" {
		warehouse, err = infraBQ.NewWarehouse(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create warehouse client")
		}
		defer warehouse.Close()
	}

	runner := pipeline.NewRunner()

	if warehouse != nil {
		runID := pipeline.NewRunID()
		runner.RunID = runID
		if err := warehouse.StartIngestionRun(ctx, runID, len(sources)); err != nil {
			log.Warn().Err(err).Msg("Failed to record ingestion run start")
		}
	}

	result, err := runner.Run(ctx, sources, opts)
	if err != nil {
		if warehouse != nil && runner.RunID != "" {
			if markErr := warehouse.MarkIngestionRunFailed(ctx, runner.RunID, err); markErr != nil {
				log.Warn().Err(markErr).Msg("Failed to record ingestion run failure")
			}
		}
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	if err := writeArtifacts(*outDir, result); err != nil {
		log.Fatal().Err(err).Msg("Failed to write artifacts")
	}

	if *bucket != "" {
		if err := uploadArtifacts(ctx, *bucket, result); err != nil {
			log.Fatal().Err(err).Msg("Failed to upload artifacts to GCS")
		}
		log.Info().Str("bucket", *bucket).Str("run_id", result.RunID).Msg("Artifacts uploaded")
	}

	if warehouse != nil {
		if err := warehouse.LoadResult(ctx, result); err != nil {
			if markErr := warehouse.MarkIngestionRunFailed(ctx, result.RunID, err); markErr != nil {
				log.Warn().Err(markErr).Msg("Failed to record ingestion run failure")
			}
			log.Fatal().Err(err).Msg("Failed to load result to BigQuery")
		}
		if err := warehouse.MarkIngestionRunSucceeded(ctx, result.RunID, result.BronzeRows, len(result.Violations)); err != nil {
			log.Warn().Err(err).Msg("Failed to record ingestion run success")
		}
	}

	if result.Passed() {
		fmt.Printf("Ingestion completed: run %s, %d bronze rows, validation passed.\n", result.RunID, result.BronzeRows)
	} else {
		fmt.Printf("Ingestion completed: run %s, %d bronze rows, %d violations - silver/gold not produced.\n",
			result.RunID, result.BronzeRows, len(result.Violations))
		for _, v := range result.Violations {
			fmt.Printf("  - %s\n", v)
		}
		os.Exit(1)
	}
}

// loadSources reads each input as a raw table, fetching gs:// URIs from GCS
// and everything else from the local filesystem.
func loadSources(ctx context.Context, inputs []string) ([]pipeline.Source, error) {
	store := gcstore.New()

	sources := make([]pipeline.Source, 0, len(inputs))
	for _, input := range inputs {
		var (
			table pipeline.Table
			name  string
			err   error
		)
		if gcstore.IsURI(input) {
			var data []byte
			data, err = store.Fetch(ctx, input)
			if err == nil {
				table, err = csvio.ReadBytes(data)
			}
			name = gcstore.Filename(input)
		} else {
			table, err = csvio.ReadFile(input)
			name = filepath.Base(input)
		}
		if err != nil {
			return nil, fmt.Errorf("loadSources %s: %w", input, err)
		}
		sources = append(sources, pipeline.Source{Name: name, Table: table})
	}
	return sources, nil
}

// writeArtifacts writes bronze.csv, the run report, and silver.csv/gold.csv
// when validation passed.
func writeArtifacts(dir string, result *pipeline.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writeArtifacts: %w", err)
	}

	if err := csvio.WriteFile(filepath.Join(dir, "bronze.csv"), result.Bronze); err != nil {
		return err
	}
	if result.Passed() {
		if err := csvio.WriteFile(filepath.Join(dir, "silver.csv"), result.Silver.Table()); err != nil {
			return err
		}
		if err := csvio.WriteFile(filepath.Join(dir, "gold.csv"), result.Gold.Table()); err != nil {
			return err
		}
	}

	report, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("writeArtifacts: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), report, 0o644); err != nil {
		return fmt.Errorf("writeArtifacts: %w", err)
	}
	return nil
}

// uploadArtifacts mirrors the local artifacts to gs://bucket/runs/<run-id>/.
func uploadArtifacts(ctx context.Context, bucket string, result *pipeline.RunResult) error {
	store := gcstore.New()
	prefix := "runs/" + result.RunID + "/"

	tables := map[string]pipeline.Table{"bronze.csv": result.Bronze}
	if result.Passed() {
		tables["silver.csv"] = result.Silver.Table()
		tables["gold.csv"] = result.Gold.Table()
	}
	for name, tbl := range tables {
		data, err := csvio.Bytes(tbl)
		if err != nil {
			return err
		}
		if err := store.Upload(ctx, bucket, prefix+name, data); err != nil {
			return err
		}
	}

	report, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("uploadArtifacts: %w", err)
	}
	return store.Upload(ctx, bucket, prefix+"report.json", report)
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

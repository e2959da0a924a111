package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/csv-warehouse/internal/csvio"
	"github.com/dvloznov/csv-warehouse/internal/gcstore"
	infraBQ "github.com/dvloznov/csv-warehouse/internal/infra/bigquery"
	"github.com/dvloznov/csv-warehouse/internal/logger"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(log)
	case "validate":
		runValidate(log)
	case "preview":
		runPreview(log)
	case "upload":
		runUpload(log)
	case "runs":
		runRuns(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("CSV Warehouse CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Run the full bronze/silver/gold pipeline over input CSVs")
	fmt.Println("  validate  Run validation over input CSVs and report violations")
	fmt.Println("  preview   Show how a CSV's headers map onto the canonical schema")
	fmt.Println("  upload    Upload a CSV file to GCS")
	fmt.Println("  runs      List recent ingestion runs from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
	fmt.Println("\nFor BigQuery loads and run tracking, use the ingest binary.")
}

func runRun(log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	outDir := fs.String("out", "data/output", "Directory for bronze/silver/gold CSVs")
	minDate := fs.String("min-date", "", "Reject dates before this ISO date")
	maxDate := fs.String("max-date", "", "Reject dates after this ISO date")
	noDedupe := fs.Bool("no-dedupe", false, "Keep exact duplicate rows in bronze")
	noClean := fs.Bool("no-clean", false, "Keep rows with null date or amount")
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		log.Fatal().Msg("Error: at least one input CSV is required (local path or gs:// URI)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
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

	sources, err := loadSources(ctx, fs.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load inputs")
	}

	log.Info().Int("files", len(sources)).Msg("Starting pipeline run")

	result, err := pipeline.NewRunner().Run(ctx, sources, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	if err := csvio.WriteFile(filepath.Join(*outDir, "bronze.csv"), result.Bronze); err != nil {
		log.Fatal().Err(err).Msg("Failed to write bronze.csv")
	}
	if result.Passed() {
		if err := csvio.WriteFile(filepath.Join(*outDir, "silver.csv"), result.Silver.Table()); err != nil {
			log.Fatal().Err(err).Msg("Failed to write silver.csv")
		}
		if err := csvio.WriteFile(filepath.Join(*outDir, "gold.csv"), result.Gold.Table()); err != nil {
			log.Fatal().Err(err).Msg("Failed to write gold.csv")
		}
		fmt.Printf("Run %s completed: %d bronze rows, %d gold rows -> %s\n",
			result.RunID, result.BronzeRows, len(result.Gold.Rows), *outDir)
		return
	}

	fmt.Printf("Run %s failed validation with %d violations:\n", result.RunID, len(result.Violations))
	for _, v := range result.Violations {
		fmt.Printf("  - %s\n", v)
	}
	os.Exit(1)
}

func runValidate(log zerolog.Logger) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	minDate := fs.String("min-date", "", "Reject dates before this ISO date")
	maxDate := fs.String("max-date", "", "Reject dates after this ISO date")
	noDedupe := fs.Bool("no-dedupe", false, "Keep exact duplicate rows in bronze")
	noClean := fs.Bool("no-clean", false, "Keep rows with null date or amount")
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		log.Fatal().Msg("Error: at least one input CSV is required (local path or gs:// URI)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
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

	sources, err := loadSources(ctx, fs.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load inputs")
	}

	result, err := pipeline.NewRunner().Run(ctx, sources, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Validation run failed")
	}

	for _, file := range result.Files {
		if len(file.Missing) > 0 {
			fmt.Printf("%s: missing fields %v\n", file.Name, file.Missing)
		}
	}

	if result.Passed() {
		fmt.Printf("Validation passed: %d bronze rows across %d files.\n", result.BronzeRows, len(result.Files))
		return
	}

	fmt.Printf("Validation failed with %d violations:\n", len(result.Violations))
	for _, v := range result.Violations {
		fmt.Printf("  - %s\n", v)
	}
	os.Exit(1)
}

func runPreview(log zerolog.Logger) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msg("Usage: cli preview FILE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sources, err := loadSources(ctx, fs.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input")
	}
	src := sources[0]

	mapping, missing := pipeline.MapColumns(src.Table.Columns, pipeline.DefaultMappingConfig())

	fmt.Printf("\n=== %s ===\n", src.Name)
	fmt.Printf("Rows:    %d\n", len(src.Table.Rows))
	fmt.Printf("Headers: %v\n", src.Table.Columns)
	fmt.Println("Mapping:")
	for _, col := range src.Table.Columns {
		if canonical, ok := mapping[col]; ok {
			fmt.Printf("  %-20s -> %s\n", col, canonical)
		} else {
			fmt.Printf("  %-20s -> (dropped)\n", col)
		}
	}
	if len(missing) > 0 {
		fmt.Printf("Missing canonical fields: %v\n", missing)
	}
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local CSV file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcstore.New().Upload(ctx, *bucketName, *objectName, data); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	project := fs.String("project", os.Getenv("GCP_PROJECT"), "GCP project (or set GCP_PROJECT env)")
	dataset := fs.String("dataset", envOr("BQ_DATASET", "csv_warehouse"), "BigQuery dataset name")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: -project is required (or set GCP_PROJECT)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	warehouse, err := infraBQ.NewWarehouse(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create warehouse client")
	}
	defer warehouse.Close()

	runs, err := warehouse.ListIngestionRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list ingestion runs")
	}

	if len(runs) == 0 {
		fmt.Println("No ingestion runs found.")
		return
	}

	fmt.Printf("%-36s  %-10s  %-20s  %8s  %10s\n", "RUN ID", "STATUS", "STARTED", "ROWS", "VIOLATIONS")
	for _, run := range runs {
		fmt.Printf("%-36s  %-10s  %-20s  %8d  %10d\n",
			run.RunID,
			run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.BronzeRows,
			run.Violations.Int64,
		)
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

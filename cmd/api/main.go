package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/csv-warehouse/internal/api/handlers"
	"github.com/dvloznov/csv-warehouse/internal/api/middleware"
	"github.com/dvloznov/csv-warehouse/internal/csvio"
	"github.com/dvloznov/csv-warehouse/internal/gcstore"
	infraBQ "github.com/dvloznov/csv-warehouse/internal/infra/bigquery"
	"github.com/dvloznov/csv-warehouse/internal/jobs"
	"github.com/dvloznov/csv-warehouse/internal/jobs/inmemory"
	"github.com/dvloznov/csv-warehouse/internal/logger"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

func main() {
	// Parse command-line flags
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		project = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project for BigQuery loads (or set GCP_PROJECT env); empty disables loading")
		dataset = flag.String("dataset", envOr("BQ_DATASET", "csv_warehouse"), "BigQuery dataset name (or set BQ_DATASET env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	// Initialize the warehouse sink if a project is configured. Without one
	// the API still runs pipelines and serves CSV artifacts from memory.
	var warehouse *infraBQ.Warehouse
	if *project != "" {
		var err error
		warehouse, err = infraBQ.NewWarehouse(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create warehouse client")
		}
		defer warehouse.Close()
	} else {
		log.Warn().Msg("No GCP project configured - results will not be loaded to BigQuery")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	runner := pipeline.NewRunner()
	registry := handlers.NewRunRegistry()
	store := gcstore.New()
	opts := pipeline.DefaultRunOptions()

	// Start worker in background to process queued runs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		runJob, ok := job.(*jobs.PipelineRunJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		ctx = logger.WithContext(ctx, log)

		log.Info().
			Str("job_id", runJob.JobID).
			Int("sources", len(runJob.SourceURIs)).
			Msg("Processing pipeline run job")

		sources := make([]pipeline.Source, 0, len(runJob.SourceURIs))
		for _, uri := range runJob.SourceURIs {
			data, err := store.Fetch(ctx, uri)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", uri, err)
			}
			table, err := csvio.ReadBytes(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", uri, err)
			}
			sources = append(sources, pipeline.Source{Name: gcstore.Filename(uri), Table: table})
		}

		result, err := runner.Run(ctx, sources, opts)
		if err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}
		registry.Save(result)

		runJob.RunID = result.RunID
		if err := jobStore.SaveJob(ctx, runJob); err != nil {
			log.Warn().Err(err).Str("job_id", runJob.JobID).Msg("Failed to record run ID on job")
		}

		if warehouse != nil {
			if err := warehouse.LoadResult(ctx, result); err != nil {
				return fmt.Errorf("load result to warehouse: %w", err)
			}
		}

		log.Info().
			Str("job_id", runJob.JobID).
			Str("run_id", result.RunID).
			Bool("passed", result.Passed()).
			Msg("Pipeline run job completed")

		return nil
	}

	// Start job consumer in background
	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	runsHandler := handlers.NewRunsHandler(runner, registry, jobQueue, opts, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Runs endpoints
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			runsHandler.CreateRun(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/enqueue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			runsHandler.EnqueueRun(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
			return
		}
		// /api/runs/:id or /api/runs/:id/:tier.csv
		if runID, artifact, ok := strings.Cut(rest, "/"); ok {
			tier := strings.TrimSuffix(path.Base(artifact), ".csv")
			runsHandler.DownloadArtifact(w, r, runID, tier)
		} else {
			runsHandler.GetRun(w, r, rest)
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", handlers.HealthHandler)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

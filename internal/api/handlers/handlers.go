package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/csv-warehouse/internal/api/middleware"
	"github.com/dvloznov/csv-warehouse/internal/csvio"
	"github.com/dvloznov/csv-warehouse/internal/gcstore"
	"github.com/dvloznov/csv-warehouse/internal/jobs"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// maxUploadBytes caps a multipart run request at 64 MiB.
const maxUploadBytes = 64 << 20

// RunsHandler handles pipeline-run endpoints.
type RunsHandler struct {
	runner    *pipeline.Runner
	registry  *RunRegistry
	publisher jobs.Publisher
	opts      pipeline.RunOptions
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runner *pipeline.Runner, registry *RunRegistry, publisher jobs.Publisher, opts pipeline.RunOptions, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		runner:    runner,
		registry:  registry,
		publisher: publisher,
		opts:      opts,
		log:       log,
	}
}

// CreateRun handles POST /api/runs
// Accepts a multipart form with one or more CSV files under "files" and runs
// the pipeline synchronously.
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "At least one file is required")
		return
	}

	sources := make([]pipeline.Source, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		table, err := csvio.Read(f)
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse %s as CSV", fh.Filename))
			return
		}
		sources = append(sources, pipeline.Source{Name: fh.Filename, Table: table})
	}

	result, err := h.runner.Run(ctx, sources, h.opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Pipeline run failed")
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.registry.Save(result)

	h.log.Info().
		Str("run_id", result.RunID).
		Int("files", len(sources)).
		Int("bronze_rows", result.BronzeRows).
		Bool("passed", result.Passed()).
		Msg("Pipeline run completed")

	middleware.WriteJSON(w, http.StatusOK, runResponse(result))
}

// EnqueueRun handles POST /api/runs/enqueue
// Accepts a JSON body with gs:// source URIs and queues an asynchronous run.
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURIs []string `json:"source_uris"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.SourceURIs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "source_uris is required")
		return
	}
	for _, uri := range req.SourceURIs {
		if !gcstore.IsURI(uri) {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Not a gs:// URI: %s", uri))
			return
		}
	}

	ctx := r.Context()

	job := &jobs.PipelineRunJob{
		JobID:      uuid.New().String(),
		SourceURIs: req.SourceURIs,
	}

	if err := h.publisher.PublishPipelineRun(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue pipeline run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue pipeline run")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Int("sources", len(req.SourceURIs)).Msg("Pipeline run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/:runId
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, runID string) {
	result, err := h.registry.Get(runID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, runResponse(result))
}

// DownloadArtifact handles GET /api/runs/:runId/:tier.csv
// Tier is one of bronze, silver or gold.
func (h *RunsHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request, runID, tier string) {
	result, err := h.registry.Get(runID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	var table pipeline.Table
	switch tier {
	case "bronze":
		table = result.Bronze
	case "silver":
		if !result.Passed() {
			middleware.WriteError(w, http.StatusConflict, "Run did not pass validation; silver was not produced")
			return
		}
		table = result.Silver.Table()
	case "gold":
		if !result.Passed() {
			middleware.WriteError(w, http.StatusConflict, "Run did not pass validation; gold was not produced")
			return
		}
		table = result.Gold.Table()
	default:
		middleware.WriteError(w, http.StatusNotFound, "Unknown artifact")
		return
	}

	data, err := csvio.Bytes(table)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Str("tier", tier).Msg("Failed to encode artifact")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to encode artifact")
		return
	}

	middleware.WriteCSV(w, fmt.Sprintf("%s_%s.csv", tier, runID), data)
}

// runResponse shapes a run result for the API, adding the validation verdict.
func runResponse(result *pipeline.RunResult) map[string]interface{} {
	return map[string]interface{}{
		"run":    result,
		"passed": result.Passed(),
	}
}

// JobsHandler handles job status endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := jobs.JobFilter{
		RunID:  query.Get("run_id"),
		Status: jobs.JobStatus(query.Get("status")),
		Limit:  50,
	}
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := query.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	list, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJob handles GET /api/jobs/:jobId
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// HealthHandler handles GET /health
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

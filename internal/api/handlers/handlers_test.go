package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/csv-warehouse/internal/jobs"
	"github.com/dvloznov/csv-warehouse/internal/logger"
	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// mockPublisher records published jobs.
type mockPublisher struct {
	published []*jobs.PipelineRunJob
	err       error
}

func (m *mockPublisher) PublishPipelineRun(ctx context.Context, job *jobs.PipelineRunJob) error {
	if m.err != nil {
		return m.err
	}
	if job.JobID == "" {
		job.JobID = "test-job"
	}
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func newTestRunsHandler(pub jobs.Publisher) *RunsHandler {
	log := logger.NewWithWriter(&bytes.Buffer{})
	return NewRunsHandler(pipeline.NewRunner(), NewRunRegistry(), pub, pipeline.DefaultRunOptions(), log)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return body, mw.FormDataContentType()
}

func TestCreateRun(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	body, contentType := multipartBody(t, map[string]string{
		"ventas.csv": "fecha,cliente,importe\n05/03/2024,ACME,\"1.234,56\"\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.CreateRun(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Passed bool `json:"passed"`
		Run    struct {
			RunID      string `json:"run_id"`
			BronzeRows int    `json:"bronze_rows"`
		} `json:"run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Passed {
		t.Error("expected run to pass validation")
	}
	if resp.Run.BronzeRows != 1 {
		t.Errorf("bronze_rows = %d, want 1", resp.Run.BronzeRows)
	}
	if resp.Run.RunID == "" {
		t.Error("expected a run ID")
	}

	// The run is retrievable afterwards.
	rec2 := httptest.NewRecorder()
	h.GetRun(rec2, httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID, nil), resp.Run.RunID)
	if rec2.Code != http.StatusOK {
		t.Errorf("GetRun status = %d", rec2.Code)
	}
}

func TestCreateRun_NoFiles(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.CreateRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDownloadArtifact(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	body, contentType := multipartBody(t, map[string]string{
		"sales.csv": "date,partner,amount\n2024-03-05,ACME,10\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.CreateRun(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("CreateRun status = %d", rec.Code)
	}

	var resp struct {
		Run struct {
			RunID string `json:"run_id"`
		} `json:"run"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)

	for _, tier := range []string{"bronze", "silver", "gold"} {
		rec := httptest.NewRecorder()
		h.DownloadArtifact(rec, httptest.NewRequest(http.MethodGet, "/", nil), resp.Run.RunID, tier)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", tier, rec.Code)
			continue
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("%s content type = %q", tier, ct)
		}
		if !strings.Contains(rec.Body.String(), "ACME") {
			t.Errorf("%s body missing data: %q", tier, rec.Body.String())
		}
	}

	rec404 := httptest.NewRecorder()
	h.DownloadArtifact(rec404, httptest.NewRequest(http.MethodGet, "/", nil), resp.Run.RunID, "platinum")
	if rec404.Code != http.StatusNotFound {
		t.Errorf("unknown tier status = %d, want 404", rec404.Code)
	}
}

func TestDownloadArtifact_GatedTiers(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	// Negative amount fails validation, gating silver and gold.
	body, contentType := multipartBody(t, map[string]string{
		"sales.csv": "date,partner,amount\n2024-03-05,ACME,-10\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.CreateRun(rec, req)

	var resp struct {
		Passed bool `json:"passed"`
		Run    struct {
			RunID string `json:"run_id"`
		} `json:"run"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Passed {
		t.Fatal("expected validation to fail")
	}

	recBronze := httptest.NewRecorder()
	h.DownloadArtifact(recBronze, httptest.NewRequest(http.MethodGet, "/", nil), resp.Run.RunID, "bronze")
	if recBronze.Code != http.StatusOK {
		t.Errorf("bronze should stay downloadable, status = %d", recBronze.Code)
	}

	recGold := httptest.NewRecorder()
	h.DownloadArtifact(recGold, httptest.NewRequest(http.MethodGet, "/", nil), resp.Run.RunID, "gold")
	if recGold.Code != http.StatusConflict {
		t.Errorf("gold on failed run status = %d, want 409", recGold.Code)
	}
}

func TestEnqueueRun(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestRunsHandler(pub)

	payload := `{"source_uris": ["gs://bucket/a.csv", "gs://bucket/b.csv"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/runs/enqueue", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.EnqueueRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(pub.published))
	}
	if len(pub.published[0].SourceURIs) != 2 {
		t.Errorf("job source URIs = %v", pub.published[0].SourceURIs)
	}
}

func TestEnqueueRun_RejectsNonGCSURI(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	payload := `{"source_uris": ["/tmp/a.csv"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/runs/enqueue", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.EnqueueRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	h := newTestRunsHandler(&mockPublisher{})

	rec := httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), "nope")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

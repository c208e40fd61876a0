package http_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openhms/diagbridge/internal/adapter/demo"
	dbhttp "github.com/openhms/diagbridge/internal/adapter/http"
	"github.com/openhms/diagbridge/internal/adapter/localfs"
	"github.com/openhms/diagbridge/internal/adapter/ws"
	"github.com/openhms/diagbridge/internal/config"
	"github.com/openhms/diagbridge/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Poller{Interval: time.Hour}
	orch := service.NewOrchestrator(demo.NewConnector(), demo.NewAnalyzer(), cfg)
	life := service.NewLifecycle(orch)
	hub := ws.NewHub()

	h := dbhttp.NewHandlers(orch, life, store, nil, hub)
	r := chi.NewRouter()
	dbhttp.MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, patientID, fileType, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if patientID != "" {
		_ = mw.WriteField("patient_id", patientID)
	}
	if fileType != "" {
		_ = mw.WriteField("file_type", fileType)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

type submitResponse struct {
	Status   string `json:"status"`
	TaskID   string `json:"task_id"`
	Analysis struct {
		Summary       string   `json:"summary"`
		Abnormalities []string `json:"abnormalities"`
		Confidence    float64  `json:"confidence"`
		Urgency       string   `json:"urgency"`
		Error         string   `json:"error,omitempty"`
	} `json:"analysis"`
}

func TestSubmitDiagnostic_XRay(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartBody(t, "P-909", "XRAY", "chest.jpg", "fake image bytes")
	resp, err := http.Post(srv.URL+"/api/v1/diagnostics", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", got.Status)
	}
	if got.TaskID == "" {
		t.Error("expected a generated task id")
	}
	if !strings.Contains(got.Analysis.Summary, "Cardiomegaly not detected") {
		t.Errorf("unexpected summary: %q", got.Analysis.Summary)
	}
	if len(got.Analysis.Abnormalities) != 1 || got.Analysis.Abnormalities[0] != "None" {
		t.Errorf("abnormalities = %v", got.Analysis.Abnormalities)
	}
	if got.Analysis.Confidence != 0.98 {
		t.Errorf("confidence = %v, want 0.98", got.Analysis.Confidence)
	}
	if got.Analysis.Urgency != "LOW" {
		t.Errorf("urgency = %q, want LOW", got.Analysis.Urgency)
	}
}

func TestSubmitDiagnostic_UnknownTypeDeclined(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartBody(t, "P-909", "PDF", "notes.pdf", "not analyzable")
	resp, err := http.Post(srv.URL+"/api/v1/diagnostics", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// A decline is a pipeline success: 200 with the marker in the report.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "FAILED" {
		t.Errorf("status = %q, want FAILED", got.Status)
	}
	if got.Analysis.Error != "unknown file type" {
		t.Errorf("error marker = %q", got.Analysis.Error)
	}
}

func TestSubmitDiagnostic_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartBody(t, "", "XRAY", "chest.jpg", "bytes")
	resp, err := http.Post(srv.URL+"/api/v1/diagnostics", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitDiagnostic_UnsafeFilenameRejected(t *testing.T) {
	srv := newTestServer(t)

	// multipart strips directory components, so ".." is what a traversal
	// attempt looks like by the time it reaches the handler.
	body, contentType := multipartBody(t, "P-1", "XRAY", "..", "x")
	resp, err := http.Post(srv.URL+"/api/v1/diagnostics", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListQueue(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/queue")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Tasks []struct {
			ID        string `json:"id"`
			PatientID string `json:"patient_id"`
			Kind      string `json:"kind"`
			Status    string `json:"status"`
		} `json:"tasks"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 1 || len(got.Tasks) != 1 {
		t.Fatalf("expected the demo pending task, got %+v", got)
	}
	if got.Tasks[0].ID != "101" || got.Tasks[0].PatientID != "P-505" {
		t.Errorf("unexpected task: %+v", got.Tasks[0])
	}
	if got.Tasks[0].Status != "PENDING" {
		t.Errorf("queue endpoint must not mutate status, got %s", got.Tasks[0].Status)
	}
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var root map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		t.Fatal(err)
	}
	if root["status"] != "online" || root["service"] != "diagbridge" {
		t.Errorf("unexpected root response: %v", root)
	}

	resp2, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" {
		t.Errorf("health status = %v", health["status"])
	}
	if health["worker"] != "stopped" {
		t.Errorf("worker = %v, want stopped (lifecycle not started)", health["worker"])
	}
}

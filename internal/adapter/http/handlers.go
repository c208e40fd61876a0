package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/openhms/diagbridge/internal/adapter/ws"
	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/messagequeue"
	"github.com/openhms/diagbridge/internal/port/storage"
	"github.com/openhms/diagbridge/internal/service"
)

// maxUploadSize bounds diagnostic artifact uploads (32 MB).
const maxUploadSize = 32 << 20

// Handlers bundles the HTTP surface's collaborators.
type Handlers struct {
	orch  *service.Orchestrator
	life  *service.Lifecycle
	store storage.ArtifactStore
	queue messagequeue.Queue // optional
	hub   *ws.Hub            // optional
}

// NewHandlers creates the handler set. queue and hub may be nil.
func NewHandlers(orch *service.Orchestrator, life *service.Lifecycle, store storage.ArtifactStore, queue messagequeue.Queue, hub *ws.Hub) *Handlers {
	return &Handlers{orch: orch, life: life, store: store, queue: queue, hub: hub}
}

// Root reports that the service is up.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": "diagbridge",
	})
}

// Health reports the state of the background worker and its collaborators.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	worker := "stopped"
	if h.life != nil && h.life.Alive() {
		worker = "running"
	}

	resp := map[string]any{
		"status": "ok",
		"worker": worker,
	}
	if h.queue != nil {
		queue := "disconnected"
		if h.queue.IsConnected() {
			queue = "connected"
		}
		resp["queue"] = queue
	}
	if h.hub != nil {
		resp["ws_clients"] = h.hub.ConnectionCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// submitResponse is the body returned for manual diagnostic submissions.
type submitResponse struct {
	Status   string          `json:"status"`
	TaskID   string          `json:"task_id"`
	Analysis *finding.Report `json:"analysis"`
}

// SubmitDiagnostic accepts a multipart upload (file, patient_id, file_type),
// stores the artifact, and runs it through analysis synchronously.
func (h *Handlers) SubmitDiagnostic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	patientID := r.FormValue("patient_id")
	fileType := r.FormValue("file_type")
	if !requireField(w, patientID, "patient_id") || !requireField(w, fileType, "file_type") {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ref, err := h.store.Save(r.Context(), patientID, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := &task.Task{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		ArtifactRef: ref,
		Kind:        task.ParseKind(fileType),
		Status:      task.StatusPending,
	}

	report, err := h.orch.ProcessOne(r.Context(), t)
	if err != nil {
		writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}

	// Declined artifacts still return 200: the pipeline worked, the
	// analyzer just refused the file type. The marker is in the report.
	writeJSON(w, http.StatusOK, submitResponse{
		Status:   string(t.Status),
		TaskID:   t.ID,
		Analysis: report,
	})
}

// queueResponse is the body returned by the queue inspection endpoint.
type queueResponse struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
}

// ListQueue returns the record system's current pending batch verbatim.
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.orch.PendingTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "record system unavailable")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, queueResponse{Tasks: tasks, Count: len(tasks)})
}

// Package httpapi exposes the automation engine over REST.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	domaincrm "github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/metrics"
	crmsvc "github.com/flowdesk/automation_layer/internal/app/services/crm"
	"github.com/flowdesk/automation_layer/internal/app/services/workflows"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// handler bundles the HTTP endpoints for the engine services.
type handler struct {
	workflows *workflows.Service
	crm       *crmsvc.Service
	audit     *auditLog
	log       *logger.Logger
}

// Options tune the router construction.
type Options struct {
	// WebhookRate and WebhookBurst bound inbound webhook deliveries per
	// remote address. Zero disables limiting.
	WebhookRate  float64
	WebhookBurst int

	// AuditFile, when set, mirrors the audit trail to a JSONL file.
	AuditFile string
	// AuditLimit bounds the in-memory audit trail. Zero means the default.
	AuditLimit int
}

// NewHandler returns the engine's REST router.
func NewHandler(wf *workflows.Service, crm *crmsvc.Service, log *logger.Logger, opts Options) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		log.WithField("path", opts.AuditFile).WithError(err).Warn("Audit file unavailable, keeping trail in memory only")
	}
	h := &handler{workflows: wf, crm: crm, audit: newAuditLog(opts.AuditLimit, sink), log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/audit", h.auditTrail).Methods(http.MethodGet)

	r.HandleFunc("/catalog/trigger-types", h.triggerCatalog).Methods(http.MethodGet)
	r.HandleFunc("/catalog/action-types", h.actionCatalog).Methods(http.MethodGet)

	r.HandleFunc("/workflows", h.createWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows", h.listWorkflows).Methods(http.MethodGet)
	r.HandleFunc("/workflows/import", h.importWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", h.getWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", h.updateWorkflow).Methods(http.MethodPut)
	r.HandleFunc("/workflows/{id}", h.deleteWorkflow).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/activate", h.setActive(true)).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/deactivate", h.setActive(false)).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/execute", h.executeWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/trigger", h.executeWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/test", h.testWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/clone", h.cloneWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/export", h.exportWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/versions", h.listVersions).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/versions/{version}", h.getVersion).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/rollback/{version}", h.rollbackWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/executions", h.listExecutions).Methods(http.MethodGet)

	webhook := http.Handler(http.HandlerFunc(h.webhook))
	if opts.WebhookRate > 0 {
		webhook = newRateLimiter(opts.WebhookRate, opts.WebhookBurst, log).wrap(webhook)
	}
	r.Handle("/workflows/{id}/webhook", webhook).Methods(http.MethodPost)

	r.HandleFunc("/executions/{id}", h.getExecution).Methods(http.MethodGet)
	r.HandleFunc("/executions/{id}/pause", h.pauseExecution).Methods(http.MethodPost)
	r.HandleFunc("/executions/{id}/resume", h.resumeExecution).Methods(http.MethodPost)

	r.HandleFunc("/clients", h.createClient).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}", h.getClient).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id}/status", h.updateClientStatus).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}/assign", h.assignClient).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}/tags", h.addClientTag).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}/tags/{tag}", h.removeClientTag).Methods(http.MethodDelete)
	r.HandleFunc("/clients/{id}/notes", h.addClientNote).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}/documents", h.recordDocumentUpload).Methods(http.MethodPost)
	r.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/complete", h.completeTask).Methods(http.MethodPost)

	return metrics.InstrumentHandler(withAudit(r, h.audit))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// --- catalogs ----------------------------------------------------------------

func (h *handler) triggerCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, workflow.TriggerCatalog())
}

func (h *handler) actionCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, workflow.ActionCatalog())
}

// --- workflow lifecycle ------------------------------------------------------

func (h *handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf workflow.Workflow
	if err := decodeJSON(r.Body, &wf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.workflows.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflows.ListWorkflows(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.GetWorkflow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *handler) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf workflow.Workflow
	if err := decodeJSON(r.Body, &wf); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf.ID = mux.Vars(r)["id"]
	updated, err := h.workflows.UpdateWorkflow(r.Context(), wf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.workflows.DeleteWorkflow(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wf, err := h.workflows.SetActive(r.Context(), mux.Vars(r)["id"], active)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wf)
	}
}

func (h *handler) cloneWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name      string `json:"name"`
		CreatedBy string `json:"createdBy"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	clone, err := h.workflows.CloneTemplate(r.Context(), mux.Vars(r)["id"], payload.Name, payload.CreatedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}

// --- execution control -------------------------------------------------------

type executeRequest struct {
	ClientID    string                 `json:"clientId"`
	TriggerData map[string]interface{} `json:"triggerData"`
}

func (h *handler) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload executeRequest
	if err := decodeJSON(r.Body, &payload); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exec, err := h.workflows.Execute(r.Context(), mux.Vars(r)["id"], payload.ClientID, payload.TriggerData)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *handler) testWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload executeRequest
	if err := decodeJSON(r.Body, &payload); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	steps, err := h.workflows.Test(r.Context(), mux.Vars(r)["id"], payload.ClientID, payload.TriggerData)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"steps": steps})
}

func (h *handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflows.ListExecutions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.workflows.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *handler) pauseExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.workflows.PauseExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *handler) resumeExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.workflows.ResumeExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- webhook ingestion -------------------------------------------------------

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	r.Body.Close()

	exec, err := h.workflows.HandleWebhook(
		r.Context(),
		mux.Vars(r)["id"],
		r.Header.Get(workflows.HeaderSignature),
		r.Header.Get(workflows.HeaderTimestamp),
		body,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- versions ----------------------------------------------------------------

func (h *handler) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.workflows.ListVersions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *handler) getVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ver, err := h.workflows.GetVersion(r.Context(), vars["id"], version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ver)
}

func (h *handler) rollbackWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf, err := h.workflows.Rollback(r.Context(), vars["id"], version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// --- export / import ---------------------------------------------------------

func (h *handler) exportWorkflow(w http.ResponseWriter, r *http.Request) {
	doc, err := h.workflows.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handler) importWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		workflow.ExportDocument
		CreatedBy string `json:"createdBy"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf, err := h.workflows.Import(r.Context(), payload.ExportDocument, payload.CreatedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// --- CRM endpoints -----------------------------------------------------------

func (h *handler) createClient(w http.ResponseWriter, r *http.Request) {
	var client domaincrm.Client
	if err := decodeJSON(r.Body, &client); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.crm.CreateClient(r.Context(), client)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.crm.GetClient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *handler) updateClientStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	client, err := h.crm.UpdateClientStatus(r.Context(), mux.Vars(r)["id"], payload.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *handler) assignClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	client, err := h.crm.AssignClient(r.Context(), mux.Vars(r)["id"], payload.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *handler) addClientTag(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tag string `json:"tag"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	client, err := h.crm.AddTag(r.Context(), mux.Vars(r)["id"], payload.Tag)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *handler) removeClientTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	client, err := h.crm.RemoveTag(r.Context(), vars["id"], vars["tag"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *handler) addClientNote(w http.ResponseWriter, r *http.Request) {
	var note domaincrm.Note
	if err := decodeJSON(r.Body, &note); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	note.ClientID = mux.Vars(r)["id"]
	created, err := h.crm.AddNote(r.Context(), note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) recordDocumentUpload(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DocumentType string `json:"documentType"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.crm.RecordDocumentUpload(r.Context(), mux.Vars(r)["id"], payload.DocumentType); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	var task domaincrm.Task
	if err := decodeJSON(r.Body, &task); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.crm.CreateTask(r.Context(), task)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) completeTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.crm.CompleteTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- helpers -----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// become 500s without leaking detail beyond the message.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, apperrors.StatusOf(err), err)
}

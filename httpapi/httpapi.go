// Package httpapi exposes the orchestration core's HTTP surface over
// gorilla/mux: task CRUD, execution queueing, SSE log streaming, model
// registry/selection/metrics, and A/B test endpoints. Errors are
// translated through orcherrors.HTTPStatus so handlers never leak stack
// traces.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/coderun/orchestrator/abtest"
	"github.com/coderun/orchestrator/coordinator"
	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/feedback"
	"github.com/coderun/orchestrator/logstream"
	"github.com/coderun/orchestrator/modelperf"
	"github.com/coderun/orchestrator/modelregistry"
	"github.com/coderun/orchestrator/modelselector"
	"github.com/coderun/orchestrator/repo"
	"github.com/coderun/orchestrator/taskservice"
	"github.com/coderun/orchestrator/telemetry"
)

// Deps wires every collaborator the HTTP surface needs. Feedback may be
// nil, in which case the feedback route is not registered.
type Deps struct {
	Tasks       *taskservice.Service
	Coordinator *coordinator.Coordinator
	Executions  repo.ExecutionRepository
	Logs        *logstream.Service
	ModelReg    *modelregistry.Registry
	ModelPerf   *modelperf.Tracker
	ModelSel    *modelselector.Selector
	ABTests     *abtest.Engine
	Feedback    *feedback.Service
	Logger      telemetry.Logger
}

// NewRouter builds the /api mux.Router covering the core's full endpoint
// surface.
func NewRouter(deps Deps) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = telemetry.NewNoopLogger()
	}
	h := &handlers{deps: deps}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", h.getTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", h.updateTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{id}/execute", h.executeTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/logs", h.streamLogs).Methods(http.MethodGet)

	api.HandleFunc("/models", h.listModels).Methods(http.MethodGet)
	api.HandleFunc("/models/refresh", h.refreshModels).Methods(http.MethodPost)
	api.HandleFunc("/models/select", h.selectModel).Methods(http.MethodPost)
	api.HandleFunc("/models/metrics", h.modelMetrics).Methods(http.MethodGet)
	api.HandleFunc("/models/best/{taskType}/{complexity}", h.bestModel).Methods(http.MethodGet)

	api.HandleFunc("/ab-tests", h.createABTest).Methods(http.MethodPost)
	api.HandleFunc("/ab-tests/active/{taskType}", h.activeABTest).Methods(http.MethodGet)

	if deps.Feedback != nil {
		api.HandleFunc("/feedback", h.recordFeedback).Methods(http.MethodPost)
	}

	return r
}

type handlers struct {
	deps Deps
}

// --- tasks ---

type createTaskRequest struct {
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orcherrors.Validation("invalid request body: %v", err))
		return
	}
	if req.Title == "" || req.Description == "" {
		writeError(w, orcherrors.Validation("title and description are required"))
		return
	}
	task, err := h.deps.Tasks.Create(r.Context(), req.UserID, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.deps.Tasks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	page, pageSize, err := parsePaging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.deps.Tasks.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if search := r.URL.Query().Get("search"); search != "" {
		tasks = filterTasks(tasks, search)
	}
	writeJSON(w, http.StatusOK, paginate(tasks, page, pageSize))
}

// filterTasks keeps tasks whose title or description contains search,
// case-insensitively.
func filterTasks(tasks []*domain.CodingTask, search string) []*domain.CodingTask {
	needle := strings.ToLower(search)
	out := make([]*domain.CodingTask, 0, len(tasks))
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) || strings.Contains(strings.ToLower(t.Description), needle) {
			out = append(out, t)
		}
	}
	return out
}

type updateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.deps.Tasks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Status.IsTerminal() {
		writeError(w, orcherrors.Conflict("task %s is terminal and cannot be updated", id))
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orcherrors.Validation("invalid request body: %v", err))
		return
	}
	if req.Title != "" {
		task.Title = req.Title
	}
	if req.Description != "" {
		task.Description = req.Description
	}
	if err := h.deps.Tasks.Update(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Tasks.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeTaskRequest struct {
	Strategy string `json:"strategy"`
}

func (h *handlers) executeTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.deps.Tasks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req executeTaskRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	exec, err := h.deps.Coordinator.QueueExecution(r.Context(), task, req.Strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (h *handlers) streamLogs(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.deps.Tasks.GetByID(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	execs, err := h.deps.Executions.ListByTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(execs) == 0 {
		writeError(w, orcherrors.NotFound("task %s has no executions", taskID))
		return
	}
	// The stream follows the most recently queued execution.
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.After(execs[j].StartedAt) })
	executionID := execs[0].ID.String()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, orcherrors.Internal("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, cancel := h.deps.Logs.Subscribe(r.Context(), executionID)
	defer cancel()
	for line := range ch {
		fmt.Fprintf(w, "data: %s\n\n", line)
		flusher.Flush()
	}
}

// --- models ---

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ModelReg.List(r.Context()))
}

func (h *handlers) refreshModels(w http.ResponseWriter, r *http.Request) {
	h.deps.ModelReg.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type selectModelRequest struct {
	TaskDescription string `json:"taskDescription"`
	TaskType        string `json:"taskType"`
	Complexity      string `json:"complexity"`
}

func (h *handlers) selectModel(w http.ResponseWriter, r *http.Request) {
	var req selectModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orcherrors.Validation("invalid request body: %v", err))
		return
	}
	if req.TaskDescription == "" {
		writeError(w, orcherrors.Validation("taskDescription is required"))
		return
	}
	selection := h.deps.ModelSel.SelectBestModel(r.Context(), req.TaskDescription, domain.TaskType(req.TaskType), domain.Complexity(req.Complexity), uuid.NewString())
	writeJSON(w, http.StatusOK, selection)
}

func (h *handlers) modelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ModelPerf.GetAll())
}

func (h *handlers) bestModel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, _ := h.deps.ModelPerf.GetBest(domain.TaskType(vars["taskType"]), domain.Complexity(vars["complexity"]))
	writeJSON(w, http.StatusOK, map[string]string{"model": name})
}

// --- ab-tests ---

func (h *handlers) createABTest(w http.ResponseWriter, r *http.Request) {
	var req abtest.CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orcherrors.Validation("invalid request body: %v", err))
		return
	}
	test, err := h.deps.ABTests.CreateTest(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

func (h *handlers) activeABTest(w http.ResponseWriter, r *http.Request) {
	taskType := domain.TaskType(mux.Vars(r)["taskType"])
	test := h.deps.ABTests.GetActiveTest(taskType)
	writeJSON(w, http.StatusOK, test)
}

// --- feedback ---

type recordFeedbackRequest struct {
	TaskID      string            `json:"taskId"`
	ExecutionID string            `json:"executionId"`
	UserID      string            `json:"userId"`
	Sentiment   string            `json:"sentiment"`
	Rating      float64           `json:"rating"`
	Reason      string            `json:"reason"`
	ProcedureID string            `json:"procedureId"`
	Context     map[string]string `json:"context"`
}

// recordFeedback persists a feedback record and then runs the analysis and
// retrain-trigger pipeline; both are best-effort after the save succeeds.
func (h *handlers) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var req recordFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orcherrors.Validation("invalid request body: %v", err))
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		writeError(w, orcherrors.Validation("invalid taskId %q", req.TaskID))
		return
	}
	if req.Rating < 0 || req.Rating > 1 {
		writeError(w, orcherrors.Validation("rating must be in [0,1]"))
		return
	}
	if _, err := h.deps.Tasks.GetByID(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}

	fb := &domain.Feedback{
		ID:        uuid.New(),
		TaskID:    taskID,
		UserID:    req.UserID,
		Sentiment: domain.Sentiment(req.Sentiment),
		Rating:    req.Rating,
		Reason:    req.Reason,
		Context:   req.Context,
		CreatedAt: time.Now(),
	}
	if req.ExecutionID != "" {
		execID, err := uuid.Parse(req.ExecutionID)
		if err != nil {
			writeError(w, orcherrors.Validation("invalid executionId %q", req.ExecutionID))
			return
		}
		fb.ExecutionID = &execID
	}
	if req.ProcedureID != "" {
		fb.ProcedureID = &req.ProcedureID
	}

	if err := h.deps.Feedback.Record(r.Context(), fb); err != nil {
		writeError(w, err)
		return
	}

	analysis, err := h.deps.Feedback.AnalyzePatterns(r.Context(), taskID.String())
	if err != nil {
		h.deps.Logger.Warn(r.Context(), "httpapi: feedback pattern analysis failed", "task_id", taskID, "error", err)
	} else {
		h.deps.Feedback.UpdateModelParameters(r.Context(), analysis)
	}

	writeJSON(w, http.StatusCreated, fb)
}

// --- helpers ---

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, orcherrors.Validation("invalid id %q", raw)
	}
	return id, nil
}

func parsePaging(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, orcherrors.Validation("invalid page %q", v)
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		pageSize, err = strconv.Atoi(v)
		if err != nil || pageSize < 1 {
			return 0, 0, orcherrors.Validation("invalid pageSize %q", v)
		}
	}
	return page, pageSize, nil
}

type taskPage struct {
	Items      []*domain.CodingTask `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalItems int                  `json:"totalItems"`
}

func paginate(tasks []*domain.CodingTask, pageNum, pageSize int) taskPage {
	start := (pageNum - 1) * pageSize
	if start > len(tasks) {
		start = len(tasks)
	}
	end := start + pageSize
	if end > len(tasks) {
		end = len(tasks)
	}
	return taskPage{Items: tasks[start:end], Page: pageNum, PageSize: pageSize, TotalItems: len(tasks)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind, _ := orcherrors.KindOf(err)
	status := orcherrors.HTTPStatus(kind)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

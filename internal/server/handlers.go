package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediagen-api/internal/job"
	"github.com/maauso/mediagen-api/internal/media"
	"github.com/maauso/mediagen-api/internal/progress"
)

// Generator runs generation requests.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts job.Options) (job.Result, error)
}

// TaskRegistry exposes the in-flight jobs.
type TaskRegistry interface {
	Get(id string) (*job.Job, error)
	List() []*job.Job
	Cancel(id string) error
	Len() int
}

// EventSource streams progress events per task.
type EventSource interface {
	Subscribe(taskID string) (<-chan progress.Event, func())
}

// ServiceCounter reports the number of registered generation services.
type ServiceCounter interface {
	Len() int
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	generator Generator
	tasks     TaskRegistry
	events    EventSource
	services  ServiceCounter
	outputDir string
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithOutputDir sets the directory served under /generated/.
func WithOutputDir(dir string) HandlerOption {
	return func(h *Handlers) {
		h.outputDir = dir
	}
}

// WithServiceCounter reports registry size on /health.
func WithServiceCounter(c ServiceCounter) HandlerOption {
	return func(h *Handlers) {
		h.services = c
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(generator Generator, tasks TaskRegistry, events EventSource, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		generator: generator,
		tasks:     tasks,
		events:    events,
		outputDir: "generated",
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", InFlight: h.tasks.Len()}
	if h.services != nil {
		resp.Services = h.services.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Generate handles POST /generate requests. The job runs for the lifetime
// of the request; a client disconnect cancels it.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if req.Kind == "" && req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "kind or serviceId is required", "VALIDATION_ERROR")
		return
	}

	opts := job.Options{
		Kind:           media.Kind(req.Kind),
		ServiceID:      req.ServiceID,
		TaskID:         req.TaskID,
		AspectRatio:    req.AspectRatio,
		Duration:       req.Duration,
		Resolution:     req.Resolution,
		NumImages:      req.NumImages,
		ImageSize:      req.ImageSize,
		Seed:           req.Seed,
		NegativePrompt: req.NegativePrompt,
		Extra:          req.Extra,
	}

	h.logger.Info("generation requested",
		slog.String("task_id", req.TaskID),
		slog.String("kind", req.Kind),
		slog.String("service_id", req.ServiceID),
	)

	result, err := h.generator.Generate(r.Context(), req.Prompt, opts)
	if err != nil {
		category := result.ErrorCategory
		if category == "" {
			category = job.Category(err)
		}
		message := result.Error
		if message == "" {
			message = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:         message,
			ErrorCategory: category,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TaskEvents handles GET /tasks/{id}/events requests by streaming progress
// events as newline-delimited JSON until a terminal event arrives or the
// client goes away.
func (h *Handlers) TaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "STREAMING_UNSUPPORTED")
		return
	}

	events, unsubscribe := h.events.Subscribe(taskID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				h.logger.Debug("event stream closed",
					slog.String("task_id", taskID),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()
		}
	}
}

// GetTask handles GET /tasks/{id} requests.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	j, err := h.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get task", "TASK_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newTaskResponse(j))
}

// ListTasks handles GET /tasks requests.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	jobs := h.tasks.List()
	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Tasks = append(resp.Tasks, newTaskResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func newTaskResponse(j *job.Job) TaskResponse {
	return TaskResponse{
		TaskID:    j.ID,
		State:     string(j.State),
		Kind:      string(j.Kind),
		ServiceID: j.ServiceID,
		Attempt:   j.Attempt,
		RequestID: j.RequestID,
		StartedAt: j.StartedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// CancelTask handles DELETE /tasks/{id} requests.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	if err := h.tasks.Cancel(taskID); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		h.logger.Error("failed to cancel task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel task", "TASK_CANCEL_FAILED")
		return
	}

	h.logger.Info("task cancellation requested", slog.String("task_id", taskID))
	writeJSON(w, http.StatusAccepted, CancelResponse{TaskID: taskID, Status: "cancelling"})
}

// GeneratedFile handles GET /generated/{file} requests.
func (h *Handlers) GeneratedFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != filepath.Base(name) || !strings.HasPrefix(name, "generated_") {
		writeError(w, http.StatusNotFound, "file not found", "FILE_NOT_FOUND")
		return
	}

	if ct := media.MIMEType(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, filepath.Join(h.outputDir, name))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

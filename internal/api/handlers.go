package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/adreel/internal/db"
	"github.com/bobarin/adreel/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const healthTimeout = 2 * time.Second

// JobStore is the persistence the handlers need; *db.DB satisfies it.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, int, error)
	ListJobArtifacts(ctx context.Context, jobID uuid.UUID) ([]models.JobArtifact, error)
	FailJob(ctx context.Context, id uuid.UUID, failedStage models.JobStage, errorMessage string) error
	PingContext(ctx context.Context) error
}

type JobQueue interface {
	EnqueueJob(ctx context.Context, jobID uuid.UUID, attempt int) error
	Ping(ctx context.Context) error
}

type Handler struct {
	store    JobStore
	queue    JobQueue
	validate *validator.Validate
}

func NewHandler(store JobStore, q JobQueue) *Handler {
	return &Handler{
		store:    store,
		queue:    q,
		validate: validator.New(),
	}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	input, err := models.ToJSONB(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job := &models.Job{
		ID:     uuid.New(),
		Input:  input,
		Stage:  models.StageStart,
		Status: models.JobStatusQueued,
	}

	if err := h.store.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] Failed to create job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueJob(r.Context(), job.ID, 1); err != nil {
		log.Printf("[API] Failed to enqueue job %s: %v", job.ID, err)
		// Nothing will ever dequeue the row, so close it out.
		if failErr := h.store.FailJob(r.Context(), job.ID, models.StageStart, "failed to enqueue job: "+err.Error()); failErr != nil {
			log.Printf("[API] Failed to mark unqueued job %s failed: %v", job.ID, failErr)
		}
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
		Stage:  job.Stage,
	})
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - status: queued, running, succeeded or failed
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.JobStatus(statusFilter) {
		case models.JobStatusQueued, models.JobStatusRunning,
			models.JobStatusSucceeded, models.JobStatusFailed:
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: queued, running, succeeded, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	jobs, total, err := h.store.ListJobs(r.Context(), statusFilter, limit, offset)
	if err != nil {
		log.Printf("[API] Failed to list jobs: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	// Inputs can carry a base64 product photo; list views omit them.
	for i := range jobs {
		jobs[i].Input = nil
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log.Printf("[API] Failed to get job %s: %v", jobID, err)
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	delete(job.Input, "product_image_b64")

	artifacts, err := h.store.ListJobArtifacts(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get artifacts")
		return
	}

	respondJSON(w, http.StatusOK, models.JobResponse{
		Job:           *job,
		FinalVideoURL: finalVideoURL(job, artifacts),
		Artifacts:     artifacts,
	})
}

// finalVideoURL picks the uploaded artifact whose local path is the job's final video.
func finalVideoURL(job *models.Job, artifacts []models.JobArtifact) *string {
	if job.FinalVideoPath == nil {
		return nil
	}
	for _, a := range artifacts {
		if a.LocalPath == *job.FinalVideoPath && a.StorageURL != nil {
			return a.StorageURL
		}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
	}
	return "Invalid fields: " + strings.Join(fields, ", ")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health reports ready only when Postgres and Redis both answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok", "queue": "ok"}
	code := http.StatusOK
	if err := h.store.PingContext(ctx); err != nil {
		log.Printf("[API] Health: database unreachable: %v", err)
		status["database"], status["status"], code = "unreachable", "degraded", http.StatusServiceUnavailable
	}
	if err := h.queue.Ping(ctx); err != nil {
		log.Printf("[API] Health: queue unreachable: %v", err)
		status["queue"], status["status"], code = "unreachable", "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, status)
}

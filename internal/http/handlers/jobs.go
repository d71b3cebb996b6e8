package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"engine/internal/domain"
)

type jobCreateRequest struct {
	Type        string          `json:"type"`
	Input       json.RawMessage `json:"input"`
	TotalSteps  *int            `json:"total_steps,omitempty"`
	ScopeID     string          `json:"scope_id,omitempty"`
	ParentJobID *string         `json:"parent_job_id,omitempty"`
}

type jobCreateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobsCreate enqueues a new job. The work happens asynchronously, so the
// response is 202 with the id to poll.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	jobType := domain.JobType(req.Type)
	if !domain.ValidJobType(jobType) {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported job type")
		return
	}
	job, err := a.Jobs.Create(r.Context(), domain.NewJob{
		OwnerID:     ownerID,
		ScopeID:     req.ScopeID,
		Type:        jobType,
		Input:       req.Input,
		TotalSteps:  req.TotalSteps,
		ParentJobID: req.ParentJobID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("http: create job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	a.json(w, http.StatusAccepted, jobCreateResponse{JobID: job.ID, Status: string(job.Status)})
}

// JobStatus returns the full job record. Ownership is checked so ids never
// leak across accounts: wrong owner reads as not found.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.loadJobForOwner(r, jobID, ownerID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobPayload(job))
}

// JobsList returns the owner's jobs newest first, optionally filtered by
// status (comma-separated).
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	var statuses []domain.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.JobStatus(strings.TrimSpace(part))
			if !domain.ValidJobStatus(status) {
				a.error(w, http.StatusBadRequest, "bad_request", "unknown status "+string(status))
				return
			}
			statuses = append(statuses, status)
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	jobs, err := a.Jobs.ListForOwner(r.Context(), ownerID, statuses, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobPayload(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobCancel requests cancellation. Terminal jobs conflict rather than error,
// because the caller's view was merely stale.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.loadJobForOwner(r, jobID, ownerID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err := a.Jobs.Cancel(r.Context(), job.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			a.error(w, http.StatusConflict, "conflict", "job already finished")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": string(domain.JobStatusCancelled)})
}

func (a *App) loadJobForOwner(r *http.Request, jobID, ownerID string) (*domain.Job, error) {
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// jobPayload is the wire shape of one job record. Result and input pass
// through as raw JSON.
func jobPayload(job *domain.Job) map[string]any {
	payload := map[string]any{
		"id":               job.ID,
		"owner_id":         job.OwnerID,
		"type":             string(job.Type),
		"status":           string(job.Status),
		"progress":         job.Progress,
		"progress_message": job.ProgressMessage,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	if job.ScopeID != "" {
		payload["scope_id"] = job.ScopeID
	}
	if job.ParentJobID != nil {
		payload["parent_job_id"] = *job.ParentJobID
	}
	if job.CurrentStep != nil {
		payload["current_step"] = *job.CurrentStep
	}
	if job.TotalSteps != nil {
		payload["total_steps"] = *job.TotalSteps
	}
	if len(job.InputJSON) > 0 {
		payload["input"] = json.RawMessage(job.InputJSON)
	}
	if len(job.ResultJSON) > 0 {
		payload["result"] = json.RawMessage(job.ResultJSON)
	}
	if job.ErrorMessage != "" {
		payload["error_message"] = job.ErrorMessage
	}
	if job.StartedAt != nil {
		payload["started_at"] = *job.StartedAt
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = *job.CompletedAt
	}
	return payload
}

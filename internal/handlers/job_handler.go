package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/models"
	"github.com/ternarybob/aequitas/internal/pipeline"
)

// SubmitJobRequest is the POST /api/jobs payload
type SubmitJobRequest struct {
	Ticker string `json:"ticker" validate:"required,min=1,max=20"`
}

// JobHandler handles HTTP requests for analysis jobs
type JobHandler struct {
	pipeline *pipeline.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(pipelineService *pipeline.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		pipeline: pipelineService,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitJobHandler handles POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Field 'ticker' is required and must be 1-20 characters")
		return
	}

	job, err := h.pipeline.Submit(r.Context(), req.Ticker)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidTicker) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("ticker", req.Ticker).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "Failed to submit analysis job")
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.pipeline.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	jobs, err := h.pipeline.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Job list failed")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.AnalysisJob{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

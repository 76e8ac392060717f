package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"
)

// Handler serves the submit/poll/health/cancel routes of spec §6.
type Handler struct {
	queue *jobqueue.Queue
	cache *jobqueue.Cache
	log   zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(queue *jobqueue.Queue, cache *jobqueue.Cache, log zerolog.Logger) *Handler {
	return &Handler{
		queue: queue,
		cache: cache,
		log:   log.With().Str("handler", "jobs").Logger(),
	}
}

// HandleSubmit handles POST /jobs.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInputInvalid, "invalid request body: "+err.Error())
		return
	}

	if len(body.Demand) == 0 && len(body.MetricFileBytes) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInputInvalid, "request has neither demand lines nor a metric file")
		return
	}
	for _, d := range body.Demand {
		if d.Units <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInputInvalid, "demand units must be strictly positive")
			return
		}
	}

	jobID, cacheHit, err := h.queue.Submit(body.toRequest())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.KindOf(err), err.Error())
		return
	}

	status := "queued"
	statusCode := http.StatusAccepted
	if cacheHit {
		status = "done"
		statusCode = http.StatusOK
	}

	rec, _ := h.queue.Status(jobID)
	h.writeJSON(w, statusCode, submitResponseDTO{
		JobID:       jobID,
		Status:      status,
		Fingerprint: rec.Fingerprint,
	})
}

// HandleStatus handles GET /jobs/{id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rec, ok := h.queue.Status(jobID)
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrInputInvalid, "job not found")
		return
	}
	h.writeJSON(w, http.StatusOK, jobRecordToDTO(rec))
}

// HandleCancel handles POST /jobs/{id}/cancel, the supplemented endpoint
// of SPEC_FULL EXPANSION C.3.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	err := h.queue.Cancel(jobID)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
	case errors.Is(err, jobqueue.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, domain.ErrInputInvalid, "job not found")
	case errors.Is(err, jobqueue.ErrAlreadyRunning):
		h.writeError(w, http.StatusConflict, domain.ErrInputInvalid, "job is already running and cannot be cancelled")
	default:
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternal, "cancellation failed")
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "connected"
	if err := h.cache.Ping(); err != nil {
		cacheStatus = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"cache": cacheStatus,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode json response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, message string) {
	h.writeJSON(w, status, map[string]errorDTO{
		"error": {Kind: string(kind), Message: message},
	})
}

// Package api implements the HTTP handlers for the scraper service.
//
// The owner of a scrape is taken from the request body or, failing that,
// from the x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET  /health                  → liveness
//	GET  /api/collections         → collections that can be scraped
//	POST /api/scrape              → submit a scrape job (202 + job id)
//	GET  /api/jobs                → the caller's jobs, newest first
//	GET  /api/jobs/{id}           → one job's status
//	POST /api/jobs/{id}/cancel    → request cancellation
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

const maxBodyBytes = 1 << 20

// ─── Dependencies ─────────────────────────────────────────────────────────────

// Service is the orchestrator surface the handlers drive.
type Service interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
	Status(id string) (jobs.Job, error)
	Jobs(ownerID string) []jobs.Job
	Collections() []collection.Entry
	Cancel(id string) error
}

// Mirror serves snapshots of jobs this process no longer holds, such as
// jobs started before a restart.
type Mirror interface {
	Lookup(ctx context.Context, id string) (jobs.Job, error)
}

// ─── Request / response types ─────────────────────────────────────────────────

type scrapeRequest struct {
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
	Pages      int    `json:"pages,omitempty"`
	Details    bool   `json:"details"`
	OwnerID    string `json:"owner_id,omitempty"`
}

type scrapeResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	svc    Service
	mirror Mirror
}

// NewHandler returns a configured Handler. mirror may be nil.
func NewHandler(svc Service, mirror Mirror) *Handler {
	return &Handler{svc: svc, mirror: mirror}
}

// RegisterRoutes mounts all scraper-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/collections", h.handleCollections)
	mux.HandleFunc("/api/scrape", h.handleScrape)
	mux.HandleFunc("/api/jobs", h.handleJobs)
	mux.HandleFunc("/api/jobs/", h.handleJobAction)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "ok", "service": "scraper-service"})
}

// handleCollections handles GET /api/collections
func (h *Handler) handleCollections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, h.svc.Collections())
}

// handleScrape handles POST /api/scrape
func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	owner := strings.TrimSpace(body.OwnerID)
	if owner == "" {
		owner = r.Header.Get("x-user-id")
	}

	id, err := h.svc.Submit(r.Context(), jobs.Request{
		Collection: body.Collection,
		Limit:      body.Limit,
		MaxPages:   body.Pages,
		Details:    body.Details,
		OwnerID:    owner,
	})
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			log.Printf("[api] submit error: %v", err)
			jsonError(w, "could not start scrape", code)
			return
		}
		if code == http.StatusServiceUnavailable {
			jsonError(w, "service is shutting down", code)
			return
		}
		jsonStatus(w, code, map[string]string{"error": clientMessage(err), "kind": string(jobs.KindOf(err))})
		return
	}

	jsonStatus(w, http.StatusAccepted, scrapeResponse{
		JobID:   id,
		Status:  jobs.StatusPending,
		Message: fmt.Sprintf("Scrape of %s queued", body.Collection),
	})
}

// handleJobs handles GET /api/jobs
func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}
	jsonOK(w, h.svc.Jobs(userID))
}

// handleJobAction handles GET /api/jobs/{id} and POST /api/jobs/{id}/cancel
func (h *Handler) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// Parse /api/jobs/{id}[/{action}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		h.getJob(w, r, parts[2])
	case len(parts) == 4 && parts[3] == "cancel" && r.Method == http.MethodPost:
		h.cancelJob(w, r, parts[2])
	case len(parts) == 3 || (len(parts) == 4 && parts[3] == "cancel"):
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.svc.Status(id)
	if errors.Is(err, jobs.ErrNotFound) && h.mirror != nil {
		j, err = h.mirror.Lookup(r.Context(), id)
		if err == nil {
			j = interrupted(j)
		}
	}
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}
		log.Printf("[api] getJob %s error: %v", id, err)
		jsonError(w, "could not load job", http.StatusInternalServerError)
		return
	}

	// Another user's job is reported as missing rather than forbidden.
	if userID := r.Header.Get("x-user-id"); userID != "" && userID != j.OwnerID {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonOK(w, j)
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.svc.Status(id)
	if err == nil {
		if userID := r.Header.Get("x-user-id"); userID != "" && userID != j.OwnerID {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}
		err = h.svc.Cancel(id)
	}

	switch {
	case err == nil:
		jsonStatus(w, http.StatusAccepted, map[string]string{"job_id": id, "message": "Cancellation requested"})
	case errors.Is(err, jobs.ErrNotFound):
		jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, jobs.ErrTerminal):
		jsonError(w, "job already finished", http.StatusConflict)
	default:
		log.Printf("[api] cancelJob %s error: %v", id, err)
		jsonError(w, "could not cancel job", http.StatusInternalServerError)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// interrupted reports a mirrored job that never finished as failed. Only
// jobs unknown to this process are read from the mirror, so one still
// pending or running lost its worker when the previous process stopped.
func interrupted(j jobs.Job) jobs.Job {
	if j.Done() {
		return j
	}
	j.Status = jobs.StatusFailed
	j.Error = jobs.KindInternal
	j.Message = "Scrape interrupted by a service restart"
	return j
}

// statusFor maps a Submit error to an HTTP status code.
func statusFor(err error) int {
	if errors.Is(err, jobs.ErrShuttingDown) {
		return http.StatusServiceUnavailable
	}
	switch jobs.KindOf(err) {
	case jobs.KindUnknownCollection, jobs.KindInvalidLimit:
		return http.StatusBadRequest
	case jobs.KindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func clientMessage(err error) string {
	var e *jobs.Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/maxbates/molecular-design-toolkit/pkg/api"
	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// Handlers serves the status API over a job registry.
type Handlers struct {
	registry *jobs.Registry
	log      *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(registry *jobs.Registry, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{registry: registry, log: log}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// ListJobs returns every retained job, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	snaps := h.registry.Jobs()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })

	out := api.JobList{Jobs: make([]api.JobStatus, 0, len(snaps))}
	for _, s := range snaps {
		out.Jobs = append(out.Jobs, api.FromSnapshot(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJob returns one job by id.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid job id"})
		return
	}
	handle, ok := h.registry.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, api.FromSnapshot(handle.Snapshot()))
}

// CancelJob requests cooperative cancellation of a job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid job id"})
		return
	}
	if !h.registry.Cancel(id) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
		return
	}
	h.log.Info("cancellation requested", "job_id", id)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api defines the JSON types shared by the status HTTP server and
// its clients.
package api

import (
	"time"

	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// JobStatus is the external view of one job.
type JobStatus struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Method      string    `json:"method"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	Retries     int       `json:"retries"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// JobList wraps a job listing response.
type JobList struct {
	Jobs []JobStatus `json:"jobs"`
}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a machine-readable error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromSnapshot converts a registry snapshot into its API view.
func FromSnapshot(s jobs.Snapshot) JobStatus {
	js := JobStatus{
		ID:          s.ID.String(),
		Fingerprint: s.Fingerprint,
		Method:      s.Method,
		State:       string(s.State),
		Attempts:    s.Attempts,
		Retries:     s.Retries,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
	if s.Err != nil {
		js.Error = s.Err.Error()
	}
	return js
}

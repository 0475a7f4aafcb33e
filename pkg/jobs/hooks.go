package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is the persistence/eventing view of a job transition. The in-memory
// registry is the source of truth; sinks see a flattened copy.
type Record struct {
	ID          uuid.UUID `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Method      string    `json:"method"`
	State       State     `json:"state"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// RecordSink receives every job state transition for durable bookkeeping
// (crash recovery). Sink failures are logged, never fatal to the job.
type RecordSink interface {
	Record(ctx context.Context, rec Record) error
}

// Notifier receives job lifecycle events for external monitors.
type Notifier interface {
	JobTransition(ctx context.Context, rec Record) error
}

func recordOf(j *Job) Record {
	s := j.snapshot()
	rec := Record{
		ID:          s.ID,
		Fingerprint: s.Fingerprint,
		Method:      s.Method,
		State:       s.State,
		Attempts:    s.Attempts,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}
	return rec
}

// Package store defines the optional durable persistence layer for job
// records. The in-memory registry is the baseline contract; a store exists
// for crash recovery and audit, never as the source of truth.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// JobRecordStore persists job transition records. Implementations also
// satisfy jobs.RecordSink.
type JobRecordStore interface {
	// Record upserts the record keyed by job id; later transitions
	// overwrite earlier ones.
	Record(ctx context.Context, rec jobs.Record) error

	// GetJob returns the stored record for a job id.
	GetJob(ctx context.Context, id uuid.UUID) (*jobs.Record, error)

	// ListJobs returns up to limit records, most recently created first.
	ListJobs(ctx context.Context, limit int) ([]jobs.Record, error)
}

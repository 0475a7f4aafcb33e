package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
	"github.com/maxbates/molecular-design-toolkit/pkg/engine"
)

// Config tunes a Registry. Zero values select the defaults below.
type Config struct {
	// MaxConcurrent bounds jobs in the Running state; excess queued jobs
	// wait in admission (FIFO) order.
	MaxConcurrent int

	// MaxAttempts bounds total attempts per job (first run plus retries).
	MaxAttempts int

	// RetryBackoff is the initial delay before a retry; it doubles per
	// attempt up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	// DefaultTimeout is the per-attempt wall-clock budget handed to the
	// container runtime. It doubles on each timed-out retry.
	DefaultTimeout time.Duration

	// Retention is how long terminal jobs stay resolvable by id before the
	// janitor evicts them.
	Retention time.Duration

	// CPUs and MemoryBytes are the per-container resource limits.
	CPUs        float64
	MemoryBytes int64

	// SubmitsPerSecond optionally throttles Submit; zero disables.
	SubmitsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = 30 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 15 * time.Minute
	}
	return c
}

// Registry is the process-wide table of in-flight and recently terminal
// jobs, keyed by spec fingerprint. It enforces at most one non-terminal job
// per fingerprint and a bounded number of concurrently running jobs.
//
// A Registry is constructed explicitly at orchestrator startup and passed by
// reference; Close drains it at shutdown.
type Registry struct {
	adapters *engine.Registry
	runtime  containerrt.Runtime
	cfg      Config
	log      *slog.Logger

	// sink and notifier are optional transition hooks.
	sink     RecordSink
	notifier Notifier

	limiter *fifoLimiter
	submits *rate.Limiter

	transitions metric.Int64Counter

	// mu guards the two maps and closed so dedup-lookup-and-insert is
	// atomic: concurrent submits with one fingerprint share one job.
	mu       sync.Mutex
	inflight map[string]*Job    // fingerprint -> non-terminal job
	byID     map[uuid.UUID]*Job // everything retained

	closed      bool
	wg          sync.WaitGroup
	janitorStop chan struct{}
}

// Option configures optional registry collaborators.
type Option func(*Registry)

// WithRecordSink installs a durable record sink for crash recovery.
func WithRecordSink(s RecordSink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithNotifier installs a lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// NewRegistry creates a registry wired to an adapter registry and a
// container runtime.
func NewRegistry(adapters *engine.Registry, rt containerrt.Runtime, cfg Config, log *slog.Logger, opts ...Option) *Registry {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		adapters:    adapters,
		runtime:     rt,
		cfg:         cfg,
		log:         log,
		limiter:     newFIFOLimiter(cfg.MaxConcurrent),
		inflight:    make(map[string]*Job),
		byID:        make(map[uuid.UUID]*Job),
		janitorStop: make(chan struct{}),
	}
	if cfg.SubmitsPerSecond > 0 {
		r.submits = rate.NewLimiter(rate.Limit(cfg.SubmitsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter("mdtk/jobs")
	counter, err := meter.Int64Counter("mdtk.jobs.transitions",
		metric.WithDescription("Job state transitions by target state"))
	if err == nil {
		r.transitions = counter
	}

	r.wg.Add(1)
	go r.janitor()
	return r
}

// Submit admits a calculation. If a non-terminal job with the same
// fingerprint exists, its handle is returned instead of starting a new job.
func (r *Registry) Submit(ctx context.Context, spec *calc.Spec) (*Handle, error) {
	if r.submits != nil {
		if err := r.submits.Wait(ctx); err != nil {
			return nil, fmt.Errorf("submit throttled: %w", err)
		}
	}

	adapter, err := r.adapters.Resolve(spec.Method())
	if err != nil {
		return nil, err
	}
	if len(spec.Properties()) == 0 {
		if d, ok := adapter.(engine.Defaulter); ok {
			expanded, err := spec.WithProperties(d.DefaultProperties())
			if err != nil {
				return nil, fmt.Errorf("expand default properties: %w", err)
			}
			spec = expanded
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if existing, ok := r.inflight[spec.Fingerprint()]; ok {
		r.mu.Unlock()
		return &Handle{job: existing}, nil
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := newJob(spec, adapter, cancel)
	r.inflight[job.fingerprint] = job
	r.byID[job.id] = job
	r.wg.Add(1)
	r.mu.Unlock()

	r.fireHooks(job)
	go r.supervise(jobCtx, job)

	return &Handle{job: job}, nil
}

// Lookup returns the handle for a retained job id.
func (r *Registry) Lookup(id uuid.UUID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &Handle{job: job}, true
}

// Cancel requests cancellation of a retained job by id.
func (r *Registry) Cancel(id uuid.UUID) bool {
	h, ok := r.Lookup(id)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Jobs returns snapshots of every retained job, in unspecified order.
func (r *Registry) Jobs() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.byID))
	for _, j := range r.byID {
		out = append(out, j.snapshot())
	}
	return out
}

// Close cancels every non-terminal job, waits for supervisors to finish and
// stops the janitor. Submit fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	jobs := make([]*Job, 0, len(r.inflight))
	for _, j := range r.inflight {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j.requestCancel()
	}
	close(r.janitorStop)
	r.wg.Wait()
}

// setState performs a validated transition and fans it out to the log, the
// metrics counter and the optional sink/notifier hooks.
func (r *Registry) setState(job *Job, to State, result *calc.ResultSet, cause error) {
	if err := job.transition(to, result, cause); err != nil {
		// A cancel/terminal race lost; the job is already terminal.
		r.log.Debug("dropped job transition", "job_id", job.id, "to", string(to), "err", err)
		return
	}
	if to.Terminal() {
		r.mu.Lock()
		if r.inflight[job.fingerprint] == job {
			delete(r.inflight, job.fingerprint)
		}
		r.mu.Unlock()
	}
	if r.transitions != nil {
		r.transitions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("state", string(to))))
	}
	r.fireHooks(job)
}

func (r *Registry) fireHooks(job *Job) {
	rec := recordOf(job)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if r.sink != nil {
		if err := r.sink.Record(ctx, rec); err != nil {
			r.log.Warn("job record sink failed", "job_id", rec.ID, "state", string(rec.State), "err", err)
		}
	}
	if r.notifier != nil {
		if err := r.notifier.JobTransition(ctx, rec); err != nil {
			r.log.Warn("job notifier failed", "job_id", rec.ID, "state", string(rec.State), "err", err)
		}
	}
}

// janitor evicts terminal jobs older than the retention window.
func (r *Registry) janitor() {
	defer r.wg.Done()
	tick := r.cfg.Retention / 4
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-r.janitorStop:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-r.cfg.Retention)
			r.mu.Lock()
			for id, j := range r.byID {
				s := j.snapshot()
				if s.State.Terminal() && s.EndedAt.Before(cutoff) {
					delete(r.byID, id)
				}
			}
			r.mu.Unlock()
		}
	}
}

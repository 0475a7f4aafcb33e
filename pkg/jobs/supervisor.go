package jobs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
	"github.com/maxbates/molecular-design-toolkit/pkg/engine"
)

// supervise owns one job's lifecycle end to end: FIFO admission, the
// prepare → run-in-container → parse pipeline, the retry policy and the
// terminal transition. Retryable faults stay contained here; the caller only
// sees the last cause once attempts are exhausted.
func (r *Registry) supervise(ctx context.Context, job *Job) {
	defer r.wg.Done()

	log := r.log.With("job_id", job.id, "method", job.spec.Method(), "fingerprint", job.fingerprint[:12])

	if err := r.limiter.Acquire(ctx); err != nil {
		// Canceled while queued; nothing to tear down.
		r.setState(job, StateCanceled, nil, ErrJobCanceled)
		log.Info("job canceled while queued")
		return
	}
	defer r.limiter.Release()

	if job.cancelWasRequested() {
		r.setState(job, StateCanceled, nil, ErrJobCanceled)
		return
	}
	r.setState(job, StateRunning, nil, nil)
	log.Info("job running")

	// Prepare once: adapters are deterministic, so re-preparing per attempt
	// could only produce the same bytes. Failures here are caller errors.
	input, err := job.adapter.Prepare(job.spec)
	if err != nil {
		r.setState(job, StateFailed, nil, err)
		log.Warn("prepare failed", "err", err)
		return
	}

	tracer := otel.Tracer("mdtk/jobs")
	timeout := r.cfg.DefaultTimeout
	backoff := r.cfg.RetryBackoff
	var lastErr error
	lastTimedOut := false

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		job.setAttempts(attempt)

		attemptCtx, span := tracer.Start(ctx, "job_attempt",
			trace.WithAttributes(
				attribute.String("job.id", job.id.String()),
				attribute.String("job.method", job.spec.Method()),
				attribute.String("job.fingerprint", job.fingerprint),
				attribute.Int("job.attempt", attempt),
			),
		)

		result, err := r.runOnce(attemptCtx, job, input, timeout)
		if err == nil {
			span.End()
			// A cancel that landed while the attempt ran still wins.
			if job.cancelWasRequested() || ctx.Err() != nil {
				r.setState(job, StateCanceled, nil, ErrJobCanceled)
				log.Info("job canceled while running")
				return
			}
			r.setState(job, StateSucceeded, result, nil)
			log.Info("job succeeded", "attempts", attempt)
			return
		}
		span.RecordError(err)
		span.End()
		lastErr = err

		if job.cancelWasRequested() || ctx.Err() != nil {
			r.setState(job, StateCanceled, nil, ErrJobCanceled)
			log.Info("job canceled while running")
			return
		}

		timedOut := errors.Is(err, containerrt.ErrTimedOut)
		if !r.retryable(job.adapter, err) || attempt == r.cfg.MaxAttempts {
			lastTimedOut = timedOut
			break
		}

		log.Warn("attempt failed, retrying", "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			r.setState(job, StateCanceled, nil, ErrJobCanceled)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.cfg.MaxRetryBackoff {
			backoff = r.cfg.MaxRetryBackoff
		}
		if timedOut {
			// A larger budget is the only retry that can help a timeout.
			timeout *= 2
		}
	}

	if lastTimedOut {
		r.setState(job, StateTimedOut, nil, lastErr)
		log.Warn("job timed out", "attempts", job.snapshot().Attempts, "err", lastErr)
		return
	}
	r.setState(job, StateFailed, nil, lastErr)
	log.Warn("job failed", "attempts", job.snapshot().Attempts, "err", lastErr)
}

// runOnce executes one attempt: container run, then parse. The adapter sees
// the raw output whatever the exit status; mapping exit codes to errors is
// its call.
func (r *Registry) runOnce(ctx context.Context, job *Job, input *engine.Input, timeout time.Duration) (*calc.ResultSet, error) {
	raw, err := r.runtime.Run(ctx, containerrt.RunSpec{
		Image:       input.Image,
		Command:     input.Command,
		Env:         input.Env,
		Stdin:       input.Stdin,
		InputFiles:  input.InputFiles,
		OutputFiles: input.OutputFiles,
		Limits: containerrt.ResourceLimits{
			CPUs:        r.cfg.CPUs,
			MemoryBytes: r.cfg.MemoryBytes,
			Timeout:     timeout,
		},
	})
	if err != nil {
		return nil, err
	}
	return job.adapter.Parse(job.spec, raw)
}

// retryable implements the fault classification: environment faults
// (timeouts, container start failures) are always transient; parse-level
// errors defer to the adapter's own classification. Scientific failures and
// contract violations are final.
func (r *Registry) retryable(adapter engine.Adapter, err error) bool {
	if errors.Is(err, containerrt.ErrTimedOut) {
		return true
	}
	var start *containerrt.StartError
	if errors.As(err, &start) {
		return true
	}
	var engFail *engine.EngineFailureError
	if errors.As(err, &engFail) {
		return false
	}
	var malformed *engine.MalformedOutputError
	if errors.As(err, &malformed) {
		return false
	}
	var invalid *engine.InvalidParametersError
	if errors.As(err, &invalid) {
		return false
	}
	return adapter.Transient(err)
}

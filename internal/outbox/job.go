package outbox

import "context"

// Job is one queued remote write. Run must be safe to invoke again after a
// failed attempt; the worker retries recoverable errors with backoff.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a closure to a Job.
type JobFunc func(ctx context.Context) error

// Run implements Job for JobFunc.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

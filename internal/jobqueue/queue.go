package jobqueue

import "context"

// Handler processes one claimed job and returns an error to signal failure
// (the binding decides whether/how to retry) or nil on success.
type Handler func(ctx context.Context, job *Job) error

// Queue is the job-queue contract (§6 external interfaces) both the NATS
// and database bindings satisfy: named queues, add with per-job options, a
// worker claim loop, and job-count introspection for drain detection.
type Queue interface {
	// Add enqueues job under queueName/jobName, merging opts over
	// DefaultOptions().
	Add(ctx context.Context, queueName, jobName string, job *Job, opts Options) error

	// Consume starts claiming jobs from queueName at the given concurrency
	// and invoking handler for each. It returns once consumption has
	// started; delivery runs on background goroutines until Close.
	Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error

	// GetJobCounts reports the queue's current active/waiting/delayed counts
	// for queueName.
	GetJobCounts(ctx context.Context, queueName string) (Counts, error)

	// HealthCheck reports whether the underlying connection is usable.
	HealthCheck(ctx context.Context) error

	// Close stops consuming and releases the underlying connection.
	Close() error
}

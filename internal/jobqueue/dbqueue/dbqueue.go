package dbqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"notify-fanout/internal/jobqueue"
)

// Queue is a jobqueue.Queue backed by a Postgres polling table, adapted
// from the teacher's internal/queue.Queue (FOR UPDATE SKIP LOCKED claim
// query, attempts-based retry) and generalized from one fixed `messages`
// table to an arbitrary named queue/job-name pair.
type Queue struct {
	db        *sql.DB
	logger    *zap.Logger
	pollEvery time.Duration
	codec     jobqueue.JobCodec
}

// New opens a dbqueue against an already-migrated `jobqueue_jobs` table
// (see Migrate).
func New(db *sql.DB, logger *zap.Logger) *Queue {
	return &Queue{db: db, logger: logger, pollEvery: 500 * time.Millisecond, codec: jobqueue.NewJobCodec()}
}

const schema = `
CREATE TABLE IF NOT EXISTS jobqueue_jobs (
	id UUID PRIMARY KEY,
	queue_name TEXT NOT NULL,
	job_name TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'waiting',
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 1,
	remove_on_complete BOOLEAN NOT NULL DEFAULT true,
	remove_on_fail BOOLEAN NOT NULL DEFAULT false,
	run_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobqueue_jobs_claim_idx ON jobqueue_jobs (queue_name, status, run_at);
`

// Migrate creates the backing table if it does not already exist. Unlike
// the rest of the pack's golang-migrate-driven schema (internal/db.RunMigrations),
// this table is small and self-contained enough to create inline; it is
// additive to, not a replacement for, the migrate-based billing/message schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (q *Queue) Add(ctx context.Context, queueName, jobName string, job *jobqueue.Job, opts jobqueue.Options) error {
	merged := jobqueue.DefaultOptions().Merge(opts)

	payload, err := q.codec.EncodeJob(job)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	runAt := time.Now()
	if merged.Delay > 0 {
		runAt = runAt.Add(time.Duration(merged.Delay) * time.Millisecond)
	}

	maxAttempts := merged.Attempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobqueue_jobs
			(id, queue_name, job_name, payload, status, max_attempts, remove_on_complete, remove_on_fail, run_at)
		VALUES ($1, $2, $3, $4, 'waiting', $5, $6, $7, $8)`,
		uuid.New(), queueName, jobName, payload, maxAttempts, merged.RemoveOnComplete, merged.RemoveOnFail, runAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (q *Queue) Consume(ctx context.Context, queueName string, concurrency int, handler jobqueue.Handler) error {
	for i := 0; i < concurrency; i++ {
		go q.pollLoop(ctx, queueName, handler)
	}
	return nil
}

func (q *Queue) pollLoop(ctx context.Context, queueName string, handler jobqueue.Handler) {
	ticker := time.NewTicker(q.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.claimAndProcessOne(ctx, queueName, handler)
		}
	}
}

type claimedRow struct {
	id               uuid.UUID
	payload          []byte
	attempts         int
	maxAttempts      int
	removeOnComplete bool
	removeOnFail     bool
}

func (q *Queue) claimAndProcessOne(ctx context.Context, queueName string, handler jobqueue.Handler) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		q.logger.Warn("dbqueue: begin claim tx failed", zap.Error(err))
		return
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE jobqueue_jobs
		SET status = 'active', updated_at = now()
		WHERE id = (
			SELECT id FROM jobqueue_jobs
			WHERE queue_name = $1 AND status = 'waiting' AND run_at <= now()
			ORDER BY run_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload, attempts, max_attempts, remove_on_complete, remove_on_fail`,
		queueName)

	var claimed claimedRow
	if err := row.Scan(&claimed.id, &claimed.payload, &claimed.attempts, &claimed.maxAttempts,
		&claimed.removeOnComplete, &claimed.removeOnFail); err != nil {
		if err != sql.ErrNoRows {
			q.logger.Warn("dbqueue: claim query failed", zap.Error(err))
		}
		return
	}

	if err := tx.Commit(); err != nil {
		q.logger.Warn("dbqueue: commit claim tx failed", zap.Error(err))
		return
	}

	job, err := q.codec.DecodeJob(claimed.payload)
	if err != nil {
		q.logger.Error("dbqueue: failed to decode job payload", zap.Error(err))
		q.finish(ctx, claimed, queueName, false)
		return
	}

	handlerErr := handler(ctx, job)
	q.finish(ctx, claimed, queueName, handlerErr == nil)
}

func (q *Queue) finish(ctx context.Context, claimed claimedRow, queueName string, success bool) {
	if success {
		if claimed.removeOnComplete {
			if _, err := q.db.ExecContext(ctx, `DELETE FROM jobqueue_jobs WHERE id = $1`, claimed.id); err != nil {
				q.logger.Warn("dbqueue: failed to delete completed job", zap.Error(err))
			}
			return
		}
		if _, err := q.db.ExecContext(ctx, `UPDATE jobqueue_jobs SET status = 'completed', updated_at = now() WHERE id = $1`, claimed.id); err != nil {
			q.logger.Warn("dbqueue: failed to mark job completed", zap.Error(err))
		}
		return
	}

	attempts := claimed.attempts + 1
	if attempts >= claimed.maxAttempts {
		if claimed.removeOnFail {
			if _, err := q.db.ExecContext(ctx, `DELETE FROM jobqueue_jobs WHERE id = $1`, claimed.id); err != nil {
				q.logger.Warn("dbqueue: failed to delete failed job", zap.Error(err))
			}
			return
		}
		if _, err := q.db.ExecContext(ctx, `UPDATE jobqueue_jobs SET status = 'failed', attempts = $2, updated_at = now() WHERE id = $1`, claimed.id, attempts); err != nil {
			q.logger.Warn("dbqueue: failed to mark job failed", zap.Error(err))
		}
		return
	}

	if _, err := q.db.ExecContext(ctx, `
		UPDATE jobqueue_jobs SET status = 'waiting', attempts = $2, run_at = now() + interval '1 second', updated_at = now()
		WHERE id = $1`, claimed.id, attempts); err != nil {
		q.logger.Warn("dbqueue: failed to reschedule job for retry", zap.Error(err))
	}
}

func (q *Queue) GetJobCounts(ctx context.Context, queueName string) (jobqueue.Counts, error) {
	var counts jobqueue.Counts

	row := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'waiting' AND run_at <= now()),
			COUNT(*) FILTER (WHERE status = 'waiting' AND run_at > now())
		FROM jobqueue_jobs WHERE queue_name = $1`, queueName)

	if err := row.Scan(&counts.Active, &counts.Waiting, &counts.Delayed); err != nil {
		return jobqueue.Counts{}, fmt.Errorf("get job counts: %w", err)
	}

	return counts, nil
}

func (q *Queue) HealthCheck(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q *Queue) Close() error {
	return q.db.Close()
}

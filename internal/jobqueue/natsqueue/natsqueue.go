package natsqueue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"notify-fanout/internal/jobqueue"
)

// Queue is a jobqueue.Queue backed by NATS JetStream. It extends the
// teacher's plain core-NATS internal/queue/nats.Queue (connection options,
// reconnect handlers, delayed-publish-via-goroutine-timer) with a JetStream
// stream per named queue, since plain pub/sub cannot answer getJobCounts or
// survive a worker restart without losing in-flight jobs.
type Queue struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	codec  jobqueue.JobCodec

	delayedPending atomic.Int64
}

// NewQueue connects to natsURL and enables JetStream, reusing the teacher's
// connection-option set (infinite reconnects, named connection, disconnect
// logging).
func NewQueue(natsURL string, logger *zap.Logger) (*Queue, error) {
	opts := []nats.Option{
		nats.Name("notify-fanout"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))

	return &Queue{conn: conn, js: js, logger: logger, codec: jobqueue.NewJobCodec()}, nil
}

func streamName(queueName string) string { return "JOBQUEUE_" + queueName }
func subject(queueName string) string    { return "jobqueue." + queueName }

func (q *Queue) ensureStream(queueName string) error {
	name := streamName(queueName)
	if _, err := q.js.StreamInfo(name); err == nil {
		return nil
	}

	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject(queueName)},
		Retention: nats.WorkQueuePolicy,
	})
	return err
}

// Add enqueues job under queueName/jobName. A delayed job (opts.Delay > 0)
// is published by a background timer goroutine, the same shape the
// teacher's PublishSendJobWithDelay uses for retry backoff.
func (q *Queue) Add(ctx context.Context, queueName, jobName string, job *jobqueue.Job, opts jobqueue.Options) error {
	if err := q.ensureStream(queueName); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	merged := jobqueue.DefaultOptions().Merge(opts)

	data, err := q.codec.EncodeEnvelope(jobName, job, merged)
	if err != nil {
		return fmt.Errorf("encode job envelope: %w", err)
	}

	if merged.Delay <= 0 {
		_, err := q.js.Publish(subject(queueName), data)
		return err
	}

	q.delayedPending.Add(1)
	go func() {
		defer q.delayedPending.Add(-1)
		timer := time.NewTimer(time.Duration(merged.Delay) * time.Millisecond)
		defer timer.Stop()

		select {
		case <-timer.C:
			if _, err := q.js.Publish(subject(queueName), data); err != nil {
				q.logger.Error("failed to publish delayed job", zap.String("queue", queueName), zap.Error(err))
			}
		case <-ctx.Done():
			q.logger.Debug("delayed job publish cancelled", zap.String("queue", queueName))
		}
	}()

	return nil
}

// Consume starts `concurrency` durable pull-consumer workers against
// queueName, each fetching one message at a time.
func (q *Queue) Consume(ctx context.Context, queueName string, concurrency int, handler jobqueue.Handler) error {
	if err := q.ensureStream(queueName); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	durable := "worker-" + queueName
	sub, err := q.js.PullSubscribe(subject(queueName), durable, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}

	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, sub, handler)
	}

	return nil
}

func (q *Queue) consumeLoop(ctx context.Context, sub *nats.Subscription, handler jobqueue.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err != nats.ErrTimeout && err != context.DeadlineExceeded {
				q.logger.Warn("jetstream fetch failed", zap.Error(err))
			}
			continue
		}

		for _, msg := range msgs {
			env, err := q.codec.DecodeEnvelope(msg.Data)
			if err != nil {
				q.logger.Error("failed to decode job envelope", zap.Error(err))
				_ = msg.Term()
				continue
			}

			if err := handler(ctx, env.Job); err != nil {
				q.logger.Warn("job handler failed", zap.Error(err), zap.String("job_id", env.Job.ID))
				if env.Opts.RemoveOnFail {
					_ = msg.Term()
				} else {
					_ = msg.Nak()
				}
				continue
			}

			_ = msg.Ack()
		}
	}
}

// GetJobCounts reports active (ack-pending), waiting (stream-pending), and
// delayed (scheduled-but-not-yet-published) counts for queueName.
func (q *Queue) GetJobCounts(ctx context.Context, queueName string) (jobqueue.Counts, error) {
	durable := "worker-" + queueName
	info, err := q.js.ConsumerInfo(streamName(queueName), durable)
	if err != nil {
		return jobqueue.Counts{}, fmt.Errorf("consumer info: %w", err)
	}

	return jobqueue.Counts{
		Active:  info.NumAckPending,
		Waiting: int(info.NumPending),
		Delayed: int(q.delayedPending.Load()),
	}, nil
}

func (q *Queue) HealthCheck(ctx context.Context) error {
	if q.conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats not connected, status: %v", q.conn.Status())
	}
	return nil
}

func (q *Queue) Close() error {
	q.conn.Close()
	return nil
}

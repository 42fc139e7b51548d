package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrPermanent marks job failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

func permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

// JobProcessor handles one job type.
type JobProcessor func(ctx context.Context, job *queue.Job) error

type processorEntry struct {
	proc  JobProcessor
	retry bool
}

// Dispatcher routes consumed messages to the processor registered for their job type
// and re-publishes failed jobs with backoff.
type Dispatcher struct {
	jobQueue queue.Enqueuer
	logger   *zap.Logger
	registry map[queue.JobType]processorEntry
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. jobQueue is used to re-enqueue retries and may be
// nil, in which case failed jobs go straight to the DLQ.
func NewDispatcher(jobQueue queue.Enqueuer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobQueue: jobQueue,
		logger:   logger,
		registry: make(map[queue.JobType]processorEntry),
		now:      time.Now,
	}
}

// RegisterProcessor registers a processor for a job type. When retry is set, failed jobs
// are re-enqueued until their retry budget is spent.
func (d *Dispatcher) RegisterProcessor(typ queue.JobType, proc JobProcessor, retry bool) {
	d.registry[typ] = processorEntry{proc: proc, retry: retry}
}

// Run consumes jobQueue until ctx is cancelled or the delivery channel closes.
func (d *Dispatcher) Run(ctx context.Context, jobQueue queue.JobQueue, prefetch int) error {
	msgs, errs, err := jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	d.logger.Info("worker_consuming", zap.Int("prefetch", prefetch))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return fmt.Errorf("consumer stopped: %w", err)
			}
			errs = nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			// Failures are logged and acknowledged inside ProcessJob
			_ = d.ProcessJob(ctx, msg)
		}
	}
}

// ProcessJob processes a job based on its type using the processor registry.
func (d *Dispatcher) ProcessJob(ctx context.Context, msg queue.MessageInterface) (err error) {
	job := msg.GetJob()
	ctx, span := telemetry.StartSpan(ctx, "job."+string(job.Type),
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.retry_count", job.RetryCount),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	jobFields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
	}

	ent, ok := d.registry[job.Type]
	if !ok {
		if nackErr := msg.Nack(false); nackErr != nil {
			d.logger.Error("failed_to_nack_unknown_job_type", append(jobFields, zap.String("error", logpkg.SanitizeError(nackErr)))...)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	start := d.now()
	if procErr := ent.proc(ctx, job); procErr != nil {
		return d.handleJobError(ctx, msg, job, procErr, ent.retry)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	d.logger.Info("job_completed", append(jobFields, zap.Duration("duration", d.now().Sub(start)))...)
	return nil
}

// handleJobError re-enqueues retryable failures with a delay and dead-letters the rest.
func (d *Dispatcher) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error, retry bool) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", logpkg.SanitizeError(err)),
	}

	if !retry || errors.Is(err, ErrPermanent) || !job.CanRetry() || d.jobQueue == nil {
		d.logger.Error("job_failed", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			d.logger.Warn("failed_to_nack_job", append(fields, zap.String("nack_error", logpkg.SanitizeError(nackErr)))...)
		}
		return fmt.Errorf("job %s failed: %w", job.ID, err)
	}

	retryJob := *job
	retryJob.ScheduleRetry(d.now())
	if ai.IsRateLimitError(err) || ai.IsQuotaError(err) {
		notBefore := d.now().Add(ai.GetRetryDelay(err, job.RetryCount))
		retryJob.NotBefore = &notBefore
	}

	if enqueueErr := d.jobQueue.Enqueue(ctx, &retryJob); enqueueErr != nil {
		d.logger.Error("job_retry_enqueue_failed", append(fields, zap.String("enqueue_error", logpkg.SanitizeError(enqueueErr)))...)
		// Let the broker redeliver the original instead of losing it
		if nackErr := msg.Nack(true); nackErr != nil {
			d.logger.Warn("failed_to_nack_job", fields...)
		}
		return fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, enqueueErr)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		d.logger.Warn("failed_to_ack_retried_job", fields...)
	}
	d.logger.Warn("job_retry_scheduled", append(fields, zap.Time("not_before", *retryJob.NotBefore))...)
	return fmt.Errorf("job %s will be retried: %w", job.ID, err)
}

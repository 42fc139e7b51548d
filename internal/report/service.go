package report

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Generator produces a health report for one user.
type Generator interface {
	Generate(ctx context.Context, userID uuid.UUID) (*models.HealthReport, error)
}

// Service runs the report pipeline: collect, assemble, resolve, invoke. It holds no
// per-request state; each call builds its own fragments and upload scope.
type Service struct {
	collector *Collector
	assembler *Assembler
	resolver  *Resolver
	invoker   *Invoker
	deleter   FileDeleter
	retrier   CleanupRetrier
	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time
}

var _ Generator = (*Service)(nil)

// ServiceOptions wires the pipeline stages.
type ServiceOptions struct {
	Collector *Collector
	Assembler *Assembler
	Resolver  *Resolver
	Invoker   *Invoker
	// Deleter removes temporary external uploads when a request finishes.
	Deleter FileDeleter
	// Retrier is optional and receives uploads whose deletion failed.
	Retrier CleanupRetrier
	Logger  *zap.Logger
	Metrics *Metrics
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// NewService creates a report service.
func NewService(opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Assembler == nil {
		opts.Assembler = NewAssembler(DefaultBudget())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		collector: opts.Collector,
		assembler: opts.Assembler,
		resolver:  opts.Resolver,
		invoker:   opts.Invoker,
		deleter:   opts.Deleter,
		retrier:   opts.Retrier,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Generate builds and validates a report. Temporary uploads created along the way
// are released before it returns, whatever the outcome.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) (report *models.HealthReport, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "report.Generate")
	defer func() {
		outcome := outcomeOf(err)
		s.metrics.observeGeneration(outcome, time.Since(start).Seconds())
		span.SetAttributes(attribute.String("report.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}()

	asm, err := s.Preview(ctx, userID)
	if err != nil {
		return nil, err
	}

	scope := NewUploadScope(s.deleter, s.retrier, s.logger, s.metrics)
	defer scope.Release(ctx)

	fragments := asm.Fragments
	if asm.PendingBinaries() > 0 {
		rctx, rspan := telemetry.Tracer().Start(ctx, "report.Resolve")
		fragments = s.resolver.Resolve(rctx, fragments, scope)
		rspan.SetAttributes(attribute.Int("report.external_uploads", len(scope.Handles())))
		rspan.End()
	}

	ictx, ispan := telemetry.Tracer().Start(ctx, "report.Invoke")
	report, err = s.invoker.Invoke(ictx, fragments)
	telemetry.EndSpan(ispan, err)
	if err != nil {
		s.logger.Error("report_generation_failed",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.String("outcome", outcomeOf(err)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil, err
	}

	s.logger.Info("report_generated",
		zap.String("user_id", logger.SanitizeUserID(userID.String())),
		zap.Int("fragments", len(fragments)),
		zap.Int("committed_cost", asm.Committed),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return report, nil
}

// Preview collects and assembles without resolving binaries or calling the generator.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID) (*Assembly, error) {
	cctx, cspan := telemetry.Tracer().Start(ctx, "report.Collect")
	rec, err := s.collector.Collect(cctx, userID)
	telemetry.EndSpan(cspan, err)
	if err != nil {
		return nil, err
	}

	asm := s.assembler.Assemble(rec, s.now())
	s.metrics.observeAssembly(asm)

	fields := []zap.Field{
		zap.String("user_id", logger.SanitizeUserID(userID.String())),
		zap.Int("notes", len(rec.Notes)),
		zap.Int("files", len(rec.Files)),
		zap.Int("integrations", len(rec.Integrations)),
		zap.Int("committed_cost", asm.Committed),
		zap.Int("total_cost", asm.Total),
		zap.Int("ceiling", asm.Ceiling),
		zap.Int("pending_binaries", asm.PendingBinaries()),
	}
	for section, truncated := range asm.Truncated {
		if truncated {
			fields = append(fields, zap.Bool("truncated_"+string(section), true))
		}
	}
	s.logger.Debug("report_assembled", fields...)
	return asm, nil
}

func outcomeOf(err error) string {
	var collectionErr *CollectionError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, models.ErrMalformedReport):
		return "malformed"
	case errors.As(err, &collectionErr):
		return "collection_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "provider_error"
	}
}

package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	logpkg "github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSweepSchedule runs the stale upload sweep at the top of every hour.
	DefaultSweepSchedule = "@hourly"
	// DefaultSweepMaxAge is how old a user_data upload must be before the sweep deletes it.
	DefaultSweepMaxAge = 24 * time.Hour

	sweepConcurrency = 4
	sweepTimeout     = 10 * time.Minute
)

// ExternalFileStore lists and deletes provider-side files.
type ExternalFileStore interface {
	ai.FileLister
	ExternalFileDeleter
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned int
	Stale   int
	Deleted int
	Failed  int
}

// UploadSweeper deletes temporary provider uploads that outlived their request, for
// example when the process died before cleanup ran.
type UploadSweeper struct {
	files  ExternalFileStore
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewUploadSweeper creates a sweeper for uploads older than maxAge
func NewUploadSweeper(files ExternalFileStore, maxAge time.Duration, logger *zap.Logger) *UploadSweeper {
	if maxAge <= 0 {
		maxAge = DefaultSweepMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadSweeper{files: files, maxAge: maxAge, logger: logger, now: time.Now}
}

// Stale lists user_data uploads older than the sweeper's max age.
func (s *UploadSweeper) Stale(ctx context.Context) ([]ai.UploadedFileInfo, int, error) {
	files, err := s.files.ListFiles(ctx, ai.FilePurposeUserData)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	stale := make([]ai.UploadedFileInfo, 0, len(files))
	for _, f := range files {
		if f.CreatedAt.Before(cutoff) {
			stale = append(stale, f)
		}
	}
	return stale, len(files), nil
}

// Sweep deletes every stale upload. Individual failures are counted, not returned.
func (s *UploadSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	stale, scanned, err := s.Stale(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var deleted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, f := range stale {
		g.Go(func() error {
			if err := s.files.DeleteFile(gctx, f.ID); err != nil {
				failed.Add(1)
				s.logger.Warn("stale_upload_delete_failed",
					zap.String("file_id", f.ID),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Scanned: scanned,
		Stale:   len(stale),
		Deleted: int(deleted.Load()),
		Failed:  int(failed.Load()),
	}
	s.logger.Info("stale_upload_sweep_finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("stale", res.Stale),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Schedule registers the sweep on c using a standard cron spec or descriptor.
func (s *UploadSweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	id, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("stale_upload_sweep_failed", zap.String("error", logpkg.SanitizeError(err)))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return id, nil
}

// CronLogger adapts zap to the cron scheduler's logger.
func CronLogger(l *zap.Logger) cron.Logger {
	return cronLogger{l: l.Sugar()}
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", logpkg.SanitizeError(err))...)
}

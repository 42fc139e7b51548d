package report

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/health-report/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCleanupTimeout bounds the release of one upload scope.
const DefaultCleanupTimeout = 30 * time.Second

// FileDeleter deletes generator-side uploads.
type FileDeleter interface {
	DeleteFile(ctx context.Context, fileID string) error
}

// CleanupRetrier takes over uploads whose deletion failed, for example by enqueueing
// a background job.
type CleanupRetrier interface {
	RetryUploadDeletion(ctx context.Context, fileID string, cause error) error
}

// UploadScope owns the temporary external uploads created during one report
// invocation. Release deletes each tracked upload exactly once.
type UploadScope struct {
	mu       sync.Mutex
	ids      []string
	released bool

	deleter FileDeleter
	retrier CleanupRetrier
	logger  *zap.Logger
	metrics *Metrics
	timeout time.Duration
}

// NewUploadScope opens an empty scope. retrier and metrics may be nil.
func NewUploadScope(deleter FileDeleter, retrier CleanupRetrier, log *zap.Logger, metrics *Metrics) *UploadScope {
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadScope{
		deleter: deleter,
		retrier: retrier,
		logger:  log,
		metrics: metrics,
		timeout: DefaultCleanupTimeout,
	}
}

// Track records an upload for deletion. Uploads tracked after Release are deleted
// immediately.
func (s *UploadScope) Track(ctx context.Context, fileID string) {
	if fileID == "" {
		return
	}
	s.mu.Lock()
	if !s.released {
		s.ids = append(s.ids, fileID)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.deleteAll(ctx, []string{fileID})
}

// Handles returns a copy of the tracked upload ids.
func (s *UploadScope) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Release deletes every tracked upload. It runs even when ctx is already cancelled,
// never returns an error and is a no-op after the first call.
func (s *UploadScope) Release(ctx context.Context) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	ids := s.ids
	s.ids = nil
	s.mu.Unlock()

	s.deleteAll(ctx, ids)
}

func (s *UploadScope) deleteAll(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			err := s.deleter.DeleteFile(cleanupCtx, id)
			if err == nil {
				s.metrics.observeDeletion("deleted")
				s.logger.Debug("external_upload_deleted", zap.String("file_id", id))
				return nil
			}

			s.metrics.observeDeletion("failed")
			s.logger.Warn("external_upload_delete_failed",
				zap.String("file_id", id),
				zap.String("operation", "report"),
				zap.String("error", logger.SanitizeError(err)),
			)
			if s.retrier != nil {
				if rerr := s.retrier.RetryUploadDeletion(cleanupCtx, id, err); rerr != nil {
					s.logger.Error("external_upload_retry_enqueue_failed",
						zap.String("file_id", id),
						zap.String("error", logger.SanitizeError(rerr)),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

package workers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/services/ai"
	"go.uber.org/zap"
)

// ExternalFileDeleter deletes provider-side files.
type ExternalFileDeleter interface {
	DeleteFile(ctx context.Context, fileID string) error
}

// UploadCleanupWorker retries deletions of temporary provider uploads
type UploadCleanupWorker struct {
	deleter ExternalFileDeleter
	logger  *zap.Logger
}

// NewUploadCleanupWorker creates a new cleanup worker
func NewUploadCleanupWorker(deleter ExternalFileDeleter, logger *zap.Logger) *UploadCleanupWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadCleanupWorker{deleter: deleter, logger: logger}
}

// ProcessDeleteExternalUploadJob deletes the upload named by the job. An upload the
// provider no longer knows counts as deleted.
func (w *UploadCleanupWorker) ProcessDeleteExternalUploadJob(ctx context.Context, job *queue.Job) error {
	if job.ExternalFileID == "" {
		return permanent("external_file_id is required for delete_external_upload job")
	}

	if err := w.deleter.DeleteFile(ctx, job.ExternalFileID); err != nil {
		if ai.StatusCode(err) == http.StatusNotFound {
			w.logger.Info("external_upload_already_gone", zap.String("file_id", job.ExternalFileID))
			return nil
		}
		return fmt.Errorf("failed to delete external upload: %w", err)
	}

	w.logger.Info("external_upload_deleted",
		zap.String("file_id", job.ExternalFileID),
		zap.Int("attempt", job.RetryCount+1),
	)
	return nil
}

package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	logpkg "github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassifiableFiles loads uploads and stores their classification.
type ClassifiableFiles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UploadedFile, error)
	UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) error
}

// BlobReader downloads stored upload content.
type BlobReader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// FileClassificationWorker classifies uploads in the background
type FileClassificationWorker struct {
	files      ClassifiableFiles
	blobs      BlobReader
	classifier ai.FileClassifier
	logger     *zap.Logger
}

// NewFileClassificationWorker creates a new classification worker
func NewFileClassificationWorker(files ClassifiableFiles, blobs BlobReader, classifier ai.FileClassifier, logger *zap.Logger) *FileClassificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileClassificationWorker{files: files, blobs: blobs, classifier: classifier, logger: logger}
}

// ProcessClassifyFileJob downloads the upload, classifies it and persists the result.
// Files deleted in the meantime are skipped.
func (w *FileClassificationWorker) ProcessClassifyFileJob(ctx context.Context, job *queue.Job) error {
	if job.FileID == nil {
		return permanent("file_id is required for classify_file job")
	}

	f, err := w.files.GetByID(ctx, *job.FileID)
	if errors.Is(err, sql.ErrNoRows) {
		w.logger.Info("classify_file_skipped", zap.String("file_id", job.FileID.String()), zap.String("reason", "file deleted"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load file: %w", err)
	}
	if f.UserID != job.UserID {
		return permanent("file %s does not belong to user", f.ID)
	}
	if !f.HasStoredContent() {
		w.logger.Info("classify_file_skipped", zap.String("file_id", f.ID.String()), zap.String("reason", "no stored content"))
		return nil
	}

	data, err := w.blobs.Download(ctx, *f.StoragePath)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		w.logger.Warn("classify_file_skipped", zap.String("file_id", f.ID.String()), zap.String("reason", "blob missing"))
		return nil
	case errors.Is(err, storage.ErrObjectTooLarge):
		return permanent("file %s exceeds the classification size limit", f.ID)
	case err != nil:
		return fmt.Errorf("failed to download file: %w", err)
	}

	mimeType := ""
	if f.MimeType != nil {
		mimeType = *f.MimeType
	}
	c, err := w.classifier.ClassifyFile(ctx, f.FileName, mimeType, data)
	if errors.Is(err, ai.ErrMissingInput) {
		return permanent("file %s has no content", f.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to classify file: %w", err)
	}

	if err := w.files.UpdateClassification(ctx, f.ID, c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to store classification: %w", err)
	}

	w.logger.Info("file_classified",
		zap.String("file_id", f.ID.String()),
		zap.String("user_id", logpkg.SanitizeUserID(f.UserID.String())),
		zap.Stringp("category", c.Category),
		zap.Stringp("subcategory", c.Subcategory),
	)
	return nil
}

package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultSignedURLTTL bounds how long listed file links stay valid.
const DefaultSignedURLTTL = 15 * time.Minute

// FileStore persists uploaded file metadata
type FileStore interface {
	Create(ctx context.Context, f *models.UploadedFile) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (*models.UploadedFile, error)
}

// ClassificationEnqueuer schedules background classification of an upload
type ClassificationEnqueuer interface {
	EnqueueClassification(ctx context.Context, userID, fileID uuid.UUID) error
}

// FileHandler handles upload requests
type FileHandler struct {
	files        FileStore
	blobs        storage.BlobStore
	enqueuer     ClassificationEnqueuer
	signedURLTTL time.Duration
	logger       *zap.Logger
}

// NewFileHandler creates a new file handler. enqueuer may be nil, in which case
// uploads stay unclassified.
func NewFileHandler(files FileStore, blobs storage.BlobStore, enqueuer ClassificationEnqueuer, signedURLTTL time.Duration, logger *zap.Logger) *FileHandler {
	if signedURLTTL <= 0 {
		signedURLTTL = DefaultSignedURLTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{
		files:        files,
		blobs:        blobs,
		enqueuer:     enqueuer,
		signedURLTTL: signedURLTTL,
		logger:       logger,
	}
}

// RegisterRoutes registers file routes
// The router should already have the /files prefix
func (h *FileHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListFiles).Methods("GET")
	r.HandleFunc("", h.UploadFile).Methods("POST")
	r.HandleFunc("/{id}", h.DeleteFile).Methods("DELETE")
}

// ListFiles returns the user's uploads, newest first, each with a signed download URL
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	files, err := h.files.ListByUserID(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to retrieve files", "")
		return
	}

	for _, f := range files {
		if !f.HasStoredContent() {
			continue
		}
		url, err := h.blobs.SignedURL(*f.StoragePath, h.signedURLTTL)
		if err != nil {
			// The listing is still useful without a link
			h.logger.Warn("signed_url_failed",
				zap.String("file_id", f.ID.String()),
				zap.String("error", logger.SanitizeError(err)),
			)
			continue
		}
		f.SignedURL = url
	}

	respondJSON(w, http.StatusOK, files)
}

// UploadFile stores the multipart field "file" and schedules its classification
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	fileName, contentType, data, err := readUpload(r)
	if err != nil {
		respondJSONError(w, uploadErrorStatus(err), "Invalid file upload", err.Error())
		return
	}

	ctx := r.Context()
	fileID := uuid.New()
	key := storage.ObjectKey(user.ID, fileID, fileName)

	size, err := h.blobs.Upload(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		h.logger.Error("blob_upload_failed",
			zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to store file", "")
		return
	}

	f := &models.UploadedFile{
		ID:          fileID,
		UserID:      user.ID,
		FileName:    fileName,
		MimeType:    &contentType,
		StoragePath: &key,
		SizeBytes:   size,
	}
	if err := h.files.Create(ctx, f); err != nil {
		if delErr := h.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			h.logger.Warn("orphaned_blob",
				zap.String("file_id", fileID.String()),
				zap.String("error", logger.SanitizeError(delErr)),
			)
		}
		respondJSONError(w, http.StatusInternalServerError, "Failed to save file", "")
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueClassification(ctx, user.ID, fileID); err != nil {
			h.logger.Warn("classification_enqueue_failed",
				zap.String("file_id", fileID.String()),
				zap.String("error", logger.SanitizeError(err)),
			)
		}
	}

	respondJSON(w, http.StatusCreated, f)
}

// DeleteFile removes the metadata row and then the blob
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid file ID", "")
		return
	}

	ctx := r.Context()
	f, err := h.files.Delete(ctx, user.ID, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondJSONError(w, http.StatusNotFound, "File not found", "")
		return
	case err != nil:
		respondJSONError(w, http.StatusInternalServerError, "Failed to delete file", "")
		return
	}

	if f.HasStoredContent() {
		if err := h.blobs.Delete(context.WithoutCancel(ctx), *f.StoragePath); err != nil {
			h.logger.Warn("orphaned_blob",
				zap.String("file_id", f.ID.String()),
				zap.String("error", logger.SanitizeError(err)),
			)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

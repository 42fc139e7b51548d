package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/storage"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart form is held in memory before spilling to disk.
const multipartMemory = 8 << 20

// ClassifyHandler assigns taxonomy categories to files and images on demand
type ClassifyHandler struct {
	classifier ai.FileClassifier
	logger     *zap.Logger
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(classifier ai.FileClassifier, logger *zap.Logger) *ClassifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifyHandler{classifier: classifier, logger: logger}
}

// RegisterRoutes registers classification routes on the API router
func (h *ClassifyHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/classify-file", h.ClassifyFile).Methods("POST")
	r.HandleFunc("/classify-image", h.ClassifyImage).Methods("POST")
}

// ClassifyImageRequest carries an image as a base64 data URI
type ClassifyImageRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// ClassifyFile classifies the multipart field "file".
func (h *ClassifyHandler) ClassifyFile(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	fileName, contentType, data, err := readUpload(r)
	if err != nil {
		respondJSONError(w, uploadErrorStatus(err), "Invalid file upload", err.Error())
		return
	}

	c, err := h.classifier.ClassifyFile(r.Context(), fileName, contentType, data)
	if err != nil {
		h.respondClassifyError(w, "classify_file", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ClassifyImage classifies a base64 image sent as JSON.
func (h *ClassifyHandler) ClassifyImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var req ClassifyImageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		respondJSONError(w, http.StatusBadRequest, "imageBase64 is required", "")
		return
	}

	dataURI := req.ImageBase64
	if !strings.HasPrefix(dataURI, "data:") {
		dataURI = "data:image/jpeg;base64," + dataURI
	}

	c, err := h.classifier.ClassifyImage(r.Context(), dataURI)
	if err != nil {
		h.respondClassifyError(w, "classify_image", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// respondClassifyError passes provider statuses through and maps the rest to 400 or 500.
func (h *ClassifyHandler) respondClassifyError(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ai.ErrMissingInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidClassification):
		status = http.StatusBadGateway
	default:
		if code := ai.StatusCode(err); code >= 400 && code <= 599 {
			status = code
		}
	}

	h.logger.Warn("classification_request_failed",
		zap.String("operation", operation),
		zap.Int("status", status),
		zap.String("error", logger.SanitizeError(err)),
	)
	respondJSONError(w, status, "Failed to classify file", err.Error())
}

var (
	errMissingFile  = errors.New(`multipart field "file" is required`)
	errFileTooLarge = fmt.Errorf("file exceeds %d MiB", storage.MaxObjectBytes>>20)
	errEmptyFile    = errors.New("file is empty")
)

// readUpload reads the multipart field "file" fully, bounded by storage.MaxObjectBytes.
func readUpload(r *http.Request) (fileName, contentType string, data []byte, err error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", "", nil, errFileTooLarge
		}
		return "", "", nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, errMissingFile
	}
	defer file.Close()

	if header.Size > storage.MaxObjectBytes {
		return "", "", nil, errFileTooLarge
	}
	data, err = io.ReadAll(io.LimitReader(file, storage.MaxObjectBytes+1))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > storage.MaxObjectBytes {
		return "", "", nil, errFileTooLarge
	}
	if len(data) == 0 {
		return "", "", nil, errEmptyFile
	}

	contentType = header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType != "application/octet-stream" {
		contentType = mediaType
	} else {
		contentType = http.DetectContentType(data)
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mediaType
		}
	}

	return storage.CleanFileName(header.Filename), contentType, data, nil
}

func uploadErrorStatus(err error) int {
	if errors.Is(err, errFileTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

package ai

import (
	"context"
	"time"

	"github.com/benvon/health-report/internal/models"
)

// PartKind identifies the type of a user message part.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
	PartFile
)

// Part is one element of a multi-part user message.
type Part struct {
	Kind PartKind
	// Text for PartText.
	Text string
	// ImageURL for PartImage, usually a base64 data URI.
	ImageURL string
	// Detail for PartImage: "low", "high" or "auto".
	Detail string
	// FileID for PartFile, a handle returned by UploadFile.
	FileID string
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Kind: PartText, Text: s} }

// ImagePart builds a low-detail image part.
func ImagePart(url string) Part { return Part{Kind: PartImage, ImageURL: url, Detail: "low"} }

// FilePart references an uploaded file.
func FilePart(id string) Part { return Part{Kind: PartFile, FileID: id} }

// CompletionRequest is a single JSON-mode chat completion.
type CompletionRequest struct {
	// Operation names the call in logs.
	Operation           string
	Model               string
	System              string
	Parts               []Part
	MaxCompletionTokens int
}

// Completer sends JSON-mode chat completions and returns the raw message content.
type Completer interface {
	CompleteJSON(ctx context.Context, req CompletionRequest) (string, error)
}

// FilePurpose mirrors the provider's upload purposes.
type FilePurpose string

const (
	FilePurposeUserData FilePurpose = "user_data"
	FilePurposeVision   FilePurpose = "vision"
)

// UploadedFileInfo describes a file held by the provider.
type UploadedFileInfo struct {
	ID        string
	FileName  string
	Purpose   string
	Bytes     int64
	CreatedAt time.Time
}

// FileUploader manages temporary provider-side files.
type FileUploader interface {
	UploadFile(ctx context.Context, fileName, contentType string, data []byte, purpose FilePurpose) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// FileLister lists provider-side files for the stale upload sweep.
type FileLister interface {
	ListFiles(ctx context.Context, purpose FilePurpose) ([]UploadedFileInfo, error)
}

// FileClassifier assigns taxonomy categories to uploads.
type FileClassifier interface {
	ClassifyImage(ctx context.Context, dataURI string) (models.Classification, error)
	ClassifyFile(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error)
}

// Ensure concrete types implement the interfaces
var (
	_ Completer      = (*OpenAIProvider)(nil)
	_ FileUploader   = (*OpenAIProvider)(nil)
	_ FileLister     = (*OpenAIProvider)(nil)
	_ FileClassifier = (*Classifier)(nil)
)

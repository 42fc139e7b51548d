package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadedFile is the metadata row for a user upload. The bytes live in the blob store under StoragePath.
type UploadedFile struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	FileName    string    `json:"file_name"`
	MimeType    *string   `json:"mime_type,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Subcategory *string   `json:"subcategory,omitempty"`
	StoragePath *string   `json:"storage_path,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`

	// SignedURL is filled in by the files handler and never stored.
	SignedURL string `json:"signed_url,omitempty"`
}

// ContentKind classifies a file by how its content can reach the model.
type ContentKind string

const (
	ContentKindImage ContentKind = "image"
	ContentKindPDF   ContentKind = "pdf"
	ContentKindOther ContentKind = "other"
)

const MimeTypePDF = "application/pdf"

// KindOfMime maps a MIME type to its ContentKind.
func KindOfMime(mimeType string) ContentKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ContentKindImage
	case mimeType == MimeTypePDF:
		return ContentKindPDF
	default:
		return ContentKindOther
	}
}

// ContentKind returns the file's kind based on its MIME type.
func (f *UploadedFile) ContentKind() ContentKind {
	if f.MimeType == nil {
		return ContentKindOther
	}
	return KindOfMime(*f.MimeType)
}

// HasStoredContent reports whether the file has a blob to fetch.
func (f *UploadedFile) HasStoredContent() bool {
	return f.StoragePath != nil && *f.StoragePath != ""
}

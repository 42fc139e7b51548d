package database

import (
	"context"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

// ProfileRepositoryInterface defines profile reads and writes
type ProfileRepositoryInterface interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
}

// UserRepositoryInterface defines login bookkeeping
type UserRepositoryInterface interface {
	Ensure(ctx context.Context, user *models.User) error
}

// NoteRepositoryInterface defines note repository operations
type NoteRepositoryInterface interface {
	Create(ctx context.Context, note *models.Note) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Note, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (bool, error)
}

// FileRepositoryInterface defines uploaded file metadata operations
type FileRepositoryInterface interface {
	Create(ctx context.Context, f *models.UploadedFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.UploadedFile, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error)
	UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) error
	Delete(ctx context.Context, userID, id uuid.UUID) (*models.UploadedFile, error)
}

// IntegrationRepositoryInterface defines integration activity reads
type IntegrationRepositoryInterface interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IntegrationActivity, error)
}

// Ensure concrete types implement the interfaces
var (
	_ ProfileRepositoryInterface     = (*UserRepository)(nil)
	_ UserRepositoryInterface        = (*UserRepository)(nil)
	_ NoteRepositoryInterface        = (*NoteRepository)(nil)
	_ FileRepositoryInterface        = (*FileRepository)(nil)
	_ IntegrationRepositoryInterface = (*IntegrationRepository)(nil)
)

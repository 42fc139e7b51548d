package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

// FileRepository handles uploaded file metadata
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, user_id, file_name, mime_type, category, subcategory, storage_path, size_bytes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (*models.UploadedFile, error) {
	f := &models.UploadedFile{}
	var mime, category, subcategory, path sql.NullString
	if err := s.Scan(&f.ID, &f.UserID, &f.FileName, &mime, &category, &subcategory, &path, &f.SizeBytes, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.MimeType = nullString(mime)
	f.Category = nullString(category)
	f.Subcategory = nullString(subcategory)
	f.StoragePath = nullString(path)
	return f, nil
}

// Create inserts a file row.
func (r *FileRepository) Create(ctx context.Context, f *models.UploadedFile) error {
	query := `
		INSERT INTO uploaded_files (id, user_id, file_name, mime_type, category, subcategory, storage_path, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, query,
		f.ID, f.UserID, f.FileName, f.MimeType, f.Category, f.Subcategory, f.StoragePath, f.SizeBytes, time.Now(),
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetByID retrieves a file row by ID
func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UploadedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM uploaded_files WHERE id = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListByUserID returns all file rows of a user, newest first.
func (r *FileRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM uploaded_files WHERE user_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := []*models.UploadedFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return files, nil
}

// UpdateClassification stores the category hints produced by the classifier.
func (r *FileRepository) UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE uploaded_files SET category = $2, subcategory = $3 WHERE id = $1`,
		id, c.Category, c.Subcategory,
	)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("file not found: %w", sql.ErrNoRows)
	}
	return nil
}

// Delete removes a file row owned by userID and returns it so the caller can remove the blob.
func (r *FileRepository) Delete(ctx context.Context, userID, id uuid.UUID) (*models.UploadedFile, error) {
	query := `DELETE FROM uploaded_files WHERE id = $1 AND user_id = $2 RETURNING ` + fileColumns
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	return f, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

// NoteRepository handles note database operations
type NoteRepository struct {
	db *DB
}

// NewNoteRepository creates a new note repository
func NewNoteRepository(db *DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts a note and fills in its creation time.
func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO notes (id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	if err := r.db.QueryRowContext(ctx, query, note.ID, note.UserID, note.Text, time.Now()).Scan(&note.CreatedAt); err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// ListByUserID returns all notes of a user, newest first.
func (r *NoteRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Note, error) {
	query := `
		SELECT id, user_id, text, created_at
		FROM notes
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notes := []*models.Note{}
	for rows.Next() {
		n := &models.Note{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Text, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// Delete removes a note owned by userID. It reports whether a row was deleted.
func (r *NoteRepository) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return n > 0, nil
}

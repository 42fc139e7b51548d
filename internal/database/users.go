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

// UserRepository handles user and profile database operations.
// Profile facts live on the users row.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure records a login: it inserts the user or refreshes email and name.
func (r *UserRepository) Ensure(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = COALESCE(users.name, EXCLUDED.name),
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Name, time.Now()).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, name, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetProfile returns the profile facts for a user. A missing user row yields an
// error wrapping sql.ErrNoRows.
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{UserID: userID}
	query := `
		SELECT name, age, weight_kg, height_cm, sex, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		name, sex      sql.NullString
		age            sql.NullInt64
		weight, height sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&name, &age, &weight, &height, &sex, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.Name = nullString(name)
	p.Sex = nullString(sex)
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	p.WeightKg = nullFloat(weight)
	p.HeightCm = nullFloat(height)
	return p, nil
}

// UpsertProfile writes every profile field; nil fields are stored as NULL.
func (r *UserRepository) UpsertProfile(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO users (id, name, age, weight_kg, height_cm, sex, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    age = EXCLUDED.age,
		    weight_kg = EXCLUDED.weight_kg,
		    height_cm = EXCLUDED.height_cm,
		    sex = EXCLUDED.sex,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query, p.UserID, p.Name, p.Age, p.WeightKg, p.HeightCm, p.Sex, time.Now()).
		Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

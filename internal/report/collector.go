package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProfileReader reads a user's profile.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// NoteLister lists a user's notes.
type NoteLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Note, error)
}

// FileLister lists a user's uploaded file metadata.
type FileLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error)
}

// IntegrationLister lists a user's imported activities.
type IntegrationLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IntegrationActivity, error)
}

// CollectionError reports a failed fetch of a required collection.
type CollectionError struct {
	Collection string
	Err        error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Collection, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Collector fetches the four record collections of one user.
type Collector struct {
	profiles     ProfileReader
	notes        NoteLister
	files        FileLister
	integrations IntegrationLister
	logger       *zap.Logger
}

// NewCollector creates a collector. integrations may be nil.
func NewCollector(profiles ProfileReader, notes NoteLister, files FileLister, integrations IntegrationLister, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		profiles:     profiles,
		notes:        notes,
		files:        files,
		integrations: integrations,
		logger:       log,
	}
}

// Collect issues all fetches concurrently. Notes and files are required; profile and
// integrations degrade to empty.
func (c *Collector) Collect(ctx context.Context, userID uuid.UUID) (*Records, error) {
	rec := &Records{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		notes, err := c.notes.ListByUserID(gctx, userID)
		if err != nil {
			return &CollectionError{Collection: "notes", Err: err}
		}
		rec.Notes = notes
		return nil
	})

	g.Go(func() error {
		files, err := c.files.ListByUserID(gctx, userID)
		if err != nil {
			return &CollectionError{Collection: "files", Err: err}
		}
		rec.Files = files
		return nil
	})

	if c.profiles != nil {
		g.Go(func() error {
			profile, err := c.profiles.GetProfile(gctx, userID)
			if err != nil {
				c.optionalFailed(gctx, userID, "profile", err)
				return nil
			}
			rec.Profile = profile
			return nil
		})
	}

	if c.integrations != nil {
		g.Go(func() error {
			activities, err := c.integrations.ListByUserID(gctx, userID)
			if err != nil {
				c.optionalFailed(gctx, userID, "integrations", err)
				return nil
			}
			rec.Integrations = activities
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Collector) optionalFailed(ctx context.Context, userID uuid.UUID, collection string, err error) {
	// A sibling failure already cancelled the request.
	if ctx.Err() != nil || errors.Is(err, sql.ErrNoRows) {
		return
	}
	c.logger.Warn("optional_collection_failed",
		zap.String("collection", collection),
		zap.String("user_id", logger.SanitizeUserID(userID.String())),
		zap.String("error", logger.SanitizeError(err)),
	)
}

package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultResolveConcurrency bounds parallel binary resolutions per request.
const DefaultResolveConcurrency = 4

var errNoSource = errors.New("binary fragment has no stored source")

// BlobReader downloads stored upload content.
type BlobReader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Resolver fetches content for pending binary fragments.
type Resolver struct {
	blobs    BlobReader
	uploader ai.FileUploader
	limit    int
	logger   *zap.Logger
	metrics  *Metrics
}

// NewResolver creates a resolver running at most limit resolutions at once.
func NewResolver(blobs BlobReader, uploader ai.FileUploader, limit int, log *zap.Logger, metrics *Metrics) *Resolver {
	if limit <= 0 {
		limit = DefaultResolveConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{blobs: blobs, uploader: uploader, limit: limit, logger: log, metrics: metrics}
}

// Resolve returns the fragments with every pending binary either resolved in place
// or dropped. Individual failures are logged and never returned. PDF uploads are
// tracked in scope.
func (r *Resolver) Resolve(ctx context.Context, fragments []Fragment, scope *UploadScope) []Fragment {
	resolved := make([]*Fragment, len(fragments))
	failed := make([]bool, len(fragments))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i := range fragments {
		if !fragments[i].Pending {
			continue
		}
		g.Go(func() error {
			f, err := r.resolveOne(ctx, fragments[i], scope)
			if err != nil {
				failed[i] = true
				r.metrics.observeResolution(fragments[i].Kind, "failed")
				r.logger.Warn("binary_resolution_failed",
					zap.String("kind", fragments[i].Kind.String()),
					zap.String("file_name", logger.SanitizeFileName(sourceName(fragments[i]))),
					zap.String("error", logger.SanitizeError(err)),
				)
				return nil
			}
			resolved[i] = f
			r.metrics.observeResolution(fragments[i].Kind, "resolved")
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Fragment, 0, len(fragments))
	for i, f := range fragments {
		switch {
		case failed[i]:
			continue
		case resolved[i] != nil:
			out = append(out, *resolved[i])
		default:
			out = append(out, f)
		}
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, f Fragment, scope *UploadScope) (res *Fragment, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("panic during resolution: %v", p)
		}
	}()

	if f.Source == nil || !f.Source.HasStoredContent() {
		return nil, errNoSource
	}
	data, err := r.blobs.Download(ctx, *f.Source.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", *f.Source.StoragePath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty object %s", *f.Source.StoragePath)
	}

	out := f
	out.Pending = false
	switch f.Kind {
	case KindInlineBinary:
		if f.Source.MimeType == nil {
			return nil, fmt.Errorf("image %s has no content type", f.Source.FileName)
		}
		out.DataURI = ai.DataURI(*f.Source.MimeType, data)
	case KindExternalHandle:
		id, err := r.uploader.UploadFile(ctx, f.Source.FileName, models.MimeTypePDF, data, ai.FilePurposeUserData)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", f.Source.FileName, err)
		}
		scope.Track(ctx, id)
		out.FileID = id
	default:
		return nil, fmt.Errorf("fragment kind %s is not binary", f.Kind)
	}
	return &out, nil
}

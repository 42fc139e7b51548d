package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// MaxObjectBytes caps how much of a single blob is read into memory.
const MaxObjectBytes = 20 << 20

var (
	// ErrObjectNotFound is returned when the blob does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectTooLarge is returned when a blob exceeds MaxObjectBytes.
	ErrObjectTooLarge = errors.New("object exceeds size limit")
)

// BlobStore is the subset of object storage used by the service.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Options configures the GCS client.
type Options struct {
	Bucket          string
	CredentialsFile string
	CredentialsJSON string
}

// GCSStore stores uploads in a single Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	logger *zap.Logger
}

var _ BlobStore = (*GCSStore)(nil)

// NewGCSStore creates the storage client. Without explicit credentials the
// application default credentials are used.
func NewGCSStore(ctx context.Context, opts Options, logger *zap.Logger) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientOpts []option.ClientOption
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case strings.TrimSpace(opts.CredentialsFile) != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(gcs.ScopeReadWrite))

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Download reads a whole object into memory.
func (s *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %q: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	if r.Attrs.Size > MaxObjectBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrObjectTooLarge, key, r.Attrs.Size)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	if len(data) > MaxObjectBytes {
		return nil, fmt.Errorf("%w: %s", ErrObjectTooLarge, key)
	}
	return data, nil
}

// Upload writes r to key and returns the number of bytes written.
func (s *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	n, err := io.Copy(w, io.LimitReader(r, MaxObjectBytes+1))
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if n > MaxObjectBytes {
		_ = w.Close()
		_ = s.client.Bucket(s.bucket).Object(key).Delete(context.WithoutCancel(ctx))
		return 0, fmt.Errorf("%w: %s", ErrObjectTooLarge, key)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close object writer %q: %w", key, err)
	}
	return n, nil
}

// Delete removes an object. A missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL valid for ttl.
func (s *GCSStore) SignedURL(key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %q: %w", key, err)
	}
	return url, nil
}

// ObjectKey builds the storage path for an upload: <user>/<file id>/<clean name>.
func ObjectKey(userID, fileID uuid.UUID, fileName string) string {
	return path.Join(userID.String(), fileID.String(), CleanFileName(fileName))
}

// CleanFileName keeps a safe base name for use inside an object key.
func CleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	return out
}

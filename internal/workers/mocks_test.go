package workers

import (
	"context"
	"sync"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/queue"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/google/uuid"
)

type mockMessage struct {
	job     *queue.Job
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked++
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

type mockQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (m *mockQueue) Enqueue(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type mockFiles struct {
	GetByIDFunc              func(ctx context.Context, id uuid.UUID) (*models.UploadedFile, error)
	UpdateClassificationFunc func(ctx context.Context, id uuid.UUID, c models.Classification) error
}

func (m *mockFiles) GetByID(ctx context.Context, id uuid.UUID) (*models.UploadedFile, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockFiles) UpdateClassification(ctx context.Context, id uuid.UUID, c models.Classification) error {
	return m.UpdateClassificationFunc(ctx, id, c)
}

type mockBlobs struct {
	DownloadFunc func(ctx context.Context, key string) ([]byte, error)
}

func (m *mockBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	return m.DownloadFunc(ctx, key)
}

type mockClassifier struct {
	ClassifyFileFunc func(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error)
}

func (m *mockClassifier) ClassifyImage(context.Context, string) (models.Classification, error) {
	return models.Classification{}, nil
}

func (m *mockClassifier) ClassifyFile(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error) {
	return m.ClassifyFileFunc(ctx, fileName, contentType, data)
}

type mockExternalFiles struct {
	mu       sync.Mutex
	files    []ai.UploadedFileInfo
	listErr  error
	failIDs  map[string]error
	deleted  []string
	purposes []ai.FilePurpose
}

func (m *mockExternalFiles) ListFiles(_ context.Context, purpose ai.FilePurpose) ([]ai.UploadedFileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purposes = append(m.purposes, purpose)
	return m.files, m.listErr
}

func (m *mockExternalFiles) DeleteFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[fileID]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, fileID)
	return nil
}

func strPtr(s string) *string { return &s }

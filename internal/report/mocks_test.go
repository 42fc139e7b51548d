package report

import (
	"context"
	"errors"
	"sync"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/google/uuid"
)

type mockProfiles struct {
	GetProfileFunc func(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

func (m *mockProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return nil, nil
}

type mockNotes struct {
	ListByUserIDFunc func(ctx context.Context, userID uuid.UUID) ([]*models.Note, error)
}

func (m *mockNotes) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Note, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

type mockFiles struct {
	ListByUserIDFunc func(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error)
}

func (m *mockFiles) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UploadedFile, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

type mockIntegrations struct {
	ListByUserIDFunc func(ctx context.Context, userID uuid.UUID) ([]*models.IntegrationActivity, error)
}

func (m *mockIntegrations) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IntegrationActivity, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

// fakeBlobs serves objects from memory; keys in fail return an error.
type fakeBlobs struct {
	objects map[string][]byte
	fail    map[string]bool
}

var errBlobMissing = errors.New("object not found")

func (f *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	if f.fail[key] {
		return nil, errBlobMissing
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errBlobMissing
	}
	return data, nil
}

// fakeUploads records uploads and deletions of generator-side files.
type fakeUploads struct {
	mu         sync.Mutex
	next       int
	uploaded   []string
	deleted    map[string]int
	uploadErr  error
	deleteErr  error
	deleteCtxs []error
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{deleted: map[string]int{}}
}

func (f *fakeUploads) UploadFile(_ context.Context, fileName, _ string, _ []byte, _ ai.FilePurpose) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.next++
	id := "file-" + fileName
	f.uploaded = append(f.uploaded, id)
	return id, nil
}

func (f *fakeUploads) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[fileID]++
	f.deleteCtxs = append(f.deleteCtxs, ctx.Err())
	return f.deleteErr
}

func (f *fakeUploads) deletions(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[id]
}

func (f *fakeUploads) uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

type mockCompleter struct {
	CompleteJSONFunc func(ctx context.Context, req ai.CompletionRequest) (string, error)

	mu   sync.Mutex
	reqs []ai.CompletionRequest
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, req)
	}
	return validReportJSON, nil
}

func (m *mockCompleter) calls() []ai.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.CompletionRequest(nil), m.reqs...)
}

type mockRetrier struct {
	mu  sync.Mutex
	ids []string
}

func (m *mockRetrier) RetryUploadDeletion(_ context.Context, fileID string, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, fileID)
	return nil
}

const validReportJSON = `{
  "statusQuo": "Generally healthy with recent sleep issues.",
  "painPoints": [{"point": "Poor sleep", "reason": "Your recent note about waking up tired."}],
  "dietTips": [{"tip": "Add leafy greens", "reason": "Your recent receipts show few vegetables."}],
  "habitTips": [{"tip": "Fixed bedtime", "reason": "Your recent note about poor sleep."}],
  "supplementProposals": [{"supplement": "Vitamin D", "reason": "The lab report you uploaded recently."}],
  "fitnessTips": [],
  "shoppingList": [{"item": "Spinach", "reason": "Supports the leafy greens tip."}]
}`

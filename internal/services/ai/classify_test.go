package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/benvon/health-report/internal/models"
)

type mockCompleter struct {
	CompleteJSONFunc func(ctx context.Context, req CompletionRequest) (string, error)
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, req CompletionRequest) (string, error) {
	return m.CompleteJSONFunc(ctx, req)
}

type mockUploader struct {
	mu         sync.Mutex
	UploadFunc func(ctx context.Context, fileName, contentType string, data []byte, purpose FilePurpose) (string, error)
	DeleteFunc func(ctx context.Context, fileID string) error
	deleted    []string
}

func (m *mockUploader) UploadFile(ctx context.Context, fileName, contentType string, data []byte, purpose FilePurpose) (string, error) {
	return m.UploadFunc(ctx, fileName, contentType, data, purpose)
}

func (m *mockUploader) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, fileID)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, fileID)
	}
	return nil
}

func (m *mockUploader) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func TestClassificationPromptListsTaxonomy(t *testing.T) {
	t.Parallel()
	prompt := classificationPrompt("the image")
	for _, want := range []string{
		"Classify the image",
		"- selfies (no subcategory)",
		"  - surgical_documents",
		"choose one subcategory from [receipts, food_images]",
		"For category 'selfies', the subcategory MUST be null.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestClassifyImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		apiErr   error
		wantCat  string
		wantSub  string
		wantErr  error
	}{
		{name: "diet receipts", response: `{"category":"diet","subcategory":"receipts"}`, wantCat: "diet", wantSub: "receipts"},
		{name: "selfie", response: `{"category":"selfies","subcategory":null}`, wantCat: "selfies"},
		{name: "invalid pair", response: `{"category":"selfies","subcategory":"receipts"}`, wantErr: models.ErrInvalidClassification},
		{name: "missing category", response: `{"subcategory":null}`, wantErr: models.ErrInvalidClassification},
		{name: "not json", response: `diet`, wantErr: models.ErrInvalidClassification},
		{name: "api failure", apiErr: &APIError{StatusCode: 503, Message: "down"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got CompletionRequest
			c := NewClassifier(&mockCompleter{CompleteJSONFunc: func(_ context.Context, req CompletionRequest) (string, error) {
				got = req
				return tt.response, tt.apiErr
			}}, nil, "", nil)

			result, err := c.ClassifyImage(context.Background(), "data:image/jpeg;base64,AAAA")

			if got.Model != DefaultClassifyModel {
				t.Errorf("model = %q, want %q", got.Model, DefaultClassifyModel)
			}
			if len(got.Parts) != 2 || got.Parts[1].Kind != PartImage || got.Parts[1].Detail != "low" {
				t.Errorf("expected text + low-detail image parts, got %+v", got.Parts)
			}

			if tt.apiErr != nil {
				if StatusCode(err) != 503 {
					t.Errorf("expected provider status to be preserved, got %v", err)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Category == nil || *result.Category != tt.wantCat {
				t.Errorf("category = %v, want %q", result.Category, tt.wantCat)
			}
			if tt.wantSub == "" && result.Subcategory != nil {
				t.Errorf("subcategory = %q, want null", *result.Subcategory)
			}
			if tt.wantSub != "" && (result.Subcategory == nil || *result.Subcategory != tt.wantSub) {
				t.Errorf("subcategory = %v, want %q", result.Subcategory, tt.wantSub)
			}
		})
	}
}

func TestClassifyImageMissingInput(t *testing.T) {
	t.Parallel()
	c := NewClassifier(&mockCompleter{CompleteJSONFunc: func(context.Context, CompletionRequest) (string, error) {
		t.Fatal("completer must not be called")
		return "", nil
	}}, nil, "", nil)
	if _, err := c.ClassifyImage(context.Background(), " "); !errors.Is(err, ErrMissingInput) {
		t.Errorf("error = %v, want ErrMissingInput", err)
	}
}

func TestClassifyFilePDFDeletesUpload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    string
		completeErr error
		wantErr     bool
	}{
		{name: "success", response: `{"category":"health","subcategory":"diagnostic_reports"}`},
		{name: "completion fails", completeErr: errors.New("timeout"), wantErr: true},
		{name: "invalid response", response: `{"category":"health","subcategory":"receipts"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			uploader := &mockUploader{UploadFunc: func(_ context.Context, name, ct string, _ []byte, purpose FilePurpose) (string, error) {
				if ct != "application/pdf" || purpose != FilePurposeUserData {
					t.Errorf("unexpected upload args: %s %s", ct, purpose)
				}
				return "file-pdf-1", nil
			}}
			completer := &mockCompleter{CompleteJSONFunc: func(_ context.Context, req CompletionRequest) (string, error) {
				if len(req.Parts) != 2 || req.Parts[1].Kind != PartFile || req.Parts[1].FileID != "file-pdf-1" {
					t.Errorf("expected file reference part, got %+v", req.Parts)
				}
				return tt.response, tt.completeErr
			}}

			c := NewClassifier(completer, uploader, "", nil)
			_, err := c.ClassifyFile(context.Background(), "labs.pdf", "application/pdf", []byte("%PDF"))
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if d := uploader.Deleted(); len(d) != 1 || d[0] != "file-pdf-1" {
				t.Errorf("expected upload deleted exactly once, got %v", d)
			}
		})
	}
}

func TestClassifyFileFallbacks(t *testing.T) {
	t.Parallel()

	neverCalled := &mockCompleter{CompleteJSONFunc: func(context.Context, CompletionRequest) (string, error) {
		t.Error("completer must not be called")
		return "", nil
	}}

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()
		c := NewClassifier(neverCalled, &mockUploader{}, "", nil)
		got, err := c.ClassifyFile(context.Background(), "notes.txt", "text/plain", []byte("hi"))
		if err != nil || got.Category != nil || got.Subcategory != nil {
			t.Errorf("expected null classification, got %+v err=%v", got, err)
		}
	})

	t.Run("pdf upload fails", func(t *testing.T) {
		t.Parallel()
		uploader := &mockUploader{UploadFunc: func(context.Context, string, string, []byte, FilePurpose) (string, error) {
			return "", errors.New("upload refused")
		}}
		c := NewClassifier(neverCalled, uploader, "", nil)
		got, err := c.ClassifyFile(context.Background(), "a.pdf", "application/pdf", []byte("%PDF"))
		if err != nil || got.Category != nil {
			t.Errorf("expected null classification, got %+v err=%v", got, err)
		}
		if len(uploader.Deleted()) != 0 {
			t.Error("nothing should be deleted when upload failed")
		}
	})

	t.Run("image routes to vision", func(t *testing.T) {
		t.Parallel()
		completer := &mockCompleter{CompleteJSONFunc: func(_ context.Context, req CompletionRequest) (string, error) {
			if !strings.HasPrefix(req.Parts[1].ImageURL, "data:image/png;base64,") {
				t.Errorf("unexpected image url %q", req.Parts[1].ImageURL)
			}
			return `{"category":"diet","subcategory":"food_images"}`, nil
		}}
		c := NewClassifier(completer, &mockUploader{}, "", nil)
		got, err := c.ClassifyFile(context.Background(), "lunch.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
		if err != nil || got.Subcategory == nil || *got.Subcategory != "food_images" {
			t.Errorf("unexpected result %+v err=%v", got, err)
		}
	})
}

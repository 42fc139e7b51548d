package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type serviceFixture struct {
	service   *Service
	uploads   *fakeUploads
	completer *mockCompleter
	metrics   *Metrics
}

func newServiceFixture(rec *Records, blobs *fakeBlobs, completer *mockCompleter) *serviceFixture {
	uploads := newFakeUploads()
	metrics := NewMetrics(prometheus.NewRegistry())
	collector := NewCollector(
		&mockProfiles{GetProfileFunc: func(context.Context, uuid.UUID) (*models.Profile, error) { return rec.Profile, nil }},
		&mockNotes{ListByUserIDFunc: func(context.Context, uuid.UUID) ([]*models.Note, error) { return rec.Notes, nil }},
		&mockFiles{ListByUserIDFunc: func(context.Context, uuid.UUID) ([]*models.UploadedFile, error) { return rec.Files, nil }},
		&mockIntegrations{ListByUserIDFunc: func(context.Context, uuid.UUID) ([]*models.IntegrationActivity, error) {
			return rec.Integrations, nil
		}},
		nil,
	)
	svc := NewService(ServiceOptions{
		Collector: collector,
		Assembler: NewAssembler(DefaultBudget()),
		Resolver:  NewResolver(blobs, uploads, 4, nil, metrics),
		Invoker:   NewInvoker(completer, "", nil),
		Deleter:   uploads,
		Metrics:   metrics,
		Now:       func() time.Time { return baseTime.Add(24 * time.Hour) },
	})
	return &serviceFixture{service: svc, uploads: uploads, completer: completer, metrics: metrics}
}

func imageAndPDF() (*Records, *fakeBlobs) {
	img := makeFile(1, "meal.jpg", "image/jpeg", true, baseTime.Add(time.Hour))
	pdf := makeFile(2, "labs.pdf", "application/pdf", true, baseTime)
	blobs := &fakeBlobs{
		objects: map[string][]byte{
			*img.StoragePath: []byte("jpeg"),
			*pdf.StoragePath: []byte("%PDF"),
		},
	}
	return &Records{Profile: testProfile(), Files: []*models.UploadedFile{img, pdf}}, blobs
}

func TestGenerateImageAndPDF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		err      error
		wantErr  bool
		outcome  string
	}{
		{name: "success", response: validReportJSON, outcome: "success"},
		{name: "missing key", response: `{"statusQuo":"ok"}`, wantErr: true, outcome: "malformed"},
		{name: "transport failure", err: errors.New("502 bad gateway"), wantErr: true, outcome: "provider_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, blobs := imageAndPDF()
			fx := newServiceFixture(rec, blobs, &mockCompleter{CompleteJSONFunc: func(context.Context, ai.CompletionRequest) (string, error) {
				return tt.response, tt.err
			}})

			report, err := fx.service.Generate(context.Background(), testUUID(1))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Generate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && report == nil {
				t.Fatal("nil report on success")
			}

			if got := fx.uploads.uploads(); len(got) != 1 || got[0] != "file-labs.pdf" {
				t.Fatalf("uploads = %v", got)
			}
			if n := fx.uploads.deletions("file-labs.pdf"); n != 1 {
				t.Errorf("PDF upload deleted %d times, want exactly 1", n)
			}

			req := fx.completer.calls()[0]
			var images, files int
			for _, p := range req.Parts {
				switch p.Kind {
				case ai.PartImage:
					images++
				case ai.PartFile:
					files++
				}
			}
			if images != 1 || files != 1 {
				t.Errorf("prompt carried %d images and %d files", images, files)
			}

			if got := testutil.ToFloat64(fx.metrics.GenerationsTotal.WithLabelValues(tt.outcome)); got != 1 {
				t.Errorf("outcome %q counted %v times", tt.outcome, got)
			}
		})
	}
}

func TestGenerateEmptyCollections(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(&Records{Profile: testProfile()}, &fakeBlobs{}, &mockCompleter{})

	if _, err := fx.service.Generate(context.Background(), testUUID(1)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var prompt strings.Builder
	for _, p := range fx.completer.calls()[0].Parts {
		prompt.WriteString(p.Text)
	}
	text := prompt.String()
	for _, want := range []string{"Name: Ada", emptyNotes, emptyFiles, emptyIntegrations} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if len(fx.uploads.uploads()) != 0 {
		t.Error("unexpected uploads")
	}
}

func TestGenerateCollectionFailure(t *testing.T) {
	t.Parallel()

	completer := &mockCompleter{}
	svc := NewService(ServiceOptions{
		Collector: NewCollector(nil,
			&mockNotes{ListByUserIDFunc: func(context.Context, uuid.UUID) ([]*models.Note, error) {
				return nil, errors.New("relation \"notes\" does not exist")
			}},
			&mockFiles{}, nil, nil),
		Invoker: NewInvoker(completer, "", nil),
	})

	_, err := svc.Generate(context.Background(), testUUID(1))
	var collErr *CollectionError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected CollectionError, got %v", err)
	}
	if len(completer.calls()) != 0 {
		t.Error("generator called after collection failure")
	}
}

func TestGenerateCleanupFailureKeepsOutcome(t *testing.T) {
	t.Parallel()

	rec, blobs := imageAndPDF()
	fx := newServiceFixture(rec, blobs, &mockCompleter{})
	fx.uploads.deleteErr = errors.New("404 no such file")

	report, err := fx.service.Generate(context.Background(), testUUID(1))
	if err != nil {
		t.Fatalf("cleanup failure changed the outcome: %v", err)
	}
	if report == nil {
		t.Fatal("nil report")
	}
	if fx.uploads.deletions("file-labs.pdf") != 1 {
		t.Error("deletion not attempted")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	rec, blobs := imageAndPDF()
	fx := newServiceFixture(rec, blobs, &mockCompleter{})

	asm, err := fx.service.Preview(context.Background(), testUUID(1))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if asm.PendingBinaries() != 2 {
		t.Errorf("pending = %d, want 2", asm.PendingBinaries())
	}
	if len(fx.completer.calls()) != 0 || len(fx.uploads.uploads()) != 0 {
		t.Error("preview reached the generator")
	}
}

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strp(s string) *string     { return &s }
func intp(i int) *int           { return &i }
func floatp(f float64) *float64 { return &f }

func testUUID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// makeNotes returns n notes of identical length, oldest first.
func makeNotes(n int) []*models.Note {
	notes := make([]*models.Note, 0, n)
	for i := 0; i < n; i++ {
		notes = append(notes, &models.Note{
			ID:        testUUID(100 + i),
			Text:      fmt.Sprintf("%02d", i) + strings.Repeat("x", 398),
			CreatedAt: baseTime.Add(time.Duration(i) * time.Hour),
		})
	}
	return notes
}

func makeFile(n int, name, mime string, stored bool, at time.Time) *models.UploadedFile {
	f := &models.UploadedFile{
		ID:        testUUID(200 + n),
		FileName:  name,
		CreatedAt: at,
	}
	if mime != "" {
		f.MimeType = strp(mime)
	}
	if stored {
		f.StoragePath = strp("user/" + name)
	}
	return f
}

func makeActivity(n int, provider string, at time.Time) *models.IntegrationActivity {
	return &models.IntegrationActivity{
		ID:                testUUID(300 + n),
		Provider:          provider,
		ActivityType:      "Run",
		Name:              fmt.Sprintf("Run %d", n),
		StartedAt:         at,
		DistanceMeters:    floatp(5000),
		MovingTimeSeconds: intp(1500),
	}
}

func testProfile() *models.Profile {
	return &models.Profile{Name: strp("Ada"), Age: intp(34), WeightKg: floatp(60), HeightCm: floatp(165)}
}

// fragmentsOf filters fragments by section.
func fragmentsOf(frags []Fragment, section Section) []Fragment {
	var out []Fragment
	for _, f := range frags {
		if f.Section == section {
			out = append(out, f)
		}
	}
	return out
}

func countText(frags []Fragment, text string) int {
	n := 0
	for _, f := range frags {
		if f.Kind == KindText && f.Text == text {
			n++
		}
	}
	return n
}

// baselineFor returns the baseline cost of an assembly at baseTime.
func baselineFor() int {
	return NewAssembler(DefaultBudget()).Assemble(&Records{}, baseTime).Baseline
}

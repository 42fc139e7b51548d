package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/health-report/internal/models"
	"github.com/google/uuid"
)

// timestampLayout renders instants in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Fixed prompt text.
const (
	headerProfile      = "== Profile ==\n"
	headerNotes        = "== Notes ==\n"
	headerFiles        = "== Uploaded Files (metadata & content references) ==\n"
	headerIntegrations = "== Integrations ==\n"

	markerProfileTruncated     = "[Profile Truncated - context limit]\n---\n"
	markerNoteTruncated        = "[Note Truncated - context limit]\n---\n"
	markerFileTruncated        = "[File Truncated - context limit]\n---\n"
	markerIntegrationTruncated = "[Activity Truncated - context limit]\n---\n"

	emptyProfile      = "No profile available.\n---\n"
	emptyNotes        = "No notes available.\n---\n"
	emptyFiles        = "No uploaded files available.\n---\n"
	emptyIntegrations = "No integration data available.\n---\n"

	statusImageIncluded = "  (Image content included below)\n---\n"
	statusImageSkipped  = "  (Image content skipped - context limit)\n---\n"
	statusPDFIncluded   = "  (PDF content included below via file reference)\n---\n"
	statusPDFSkipped    = "  (PDF content skipped - context limit)\n---\n"
	statusNotProcessed  = "  (Content not processed for this file type)\n---\n"
)

// Records is everything the collector fetched for one user.
type Records struct {
	UserID       uuid.UUID
	Profile      *models.Profile
	Notes        []*models.Note
	Files        []*models.UploadedFile
	Integrations []*models.IntegrationActivity
}

// Assembly is the ordered prompt produced by the assembler.
type Assembly struct {
	Fragments []Fragment
	Ceiling   int
	// Baseline is the cost of the preamble and section headers.
	Baseline int
	// Committed is the baseline plus every admitted record and reserved allowance.
	// It never exceeds Ceiling unless Baseline alone does.
	Committed int
	// Total is Committed plus the cost of marker fragments.
	Total int
	// Truncated records which sections hit the ceiling.
	Truncated map[Section]bool
}

// PendingBinaries counts fragments awaiting content resolution.
func (a *Assembly) PendingBinaries() int {
	n := 0
	for _, f := range a.Fragments {
		if f.Pending {
			n++
		}
	}
	return n
}

// Assembler renders records into budgeted prompt fragments. It is pure: the same
// records, budget and time always yield identical output.
type Assembler struct {
	budget Budget
}

// NewAssembler creates an assembler with the given budget.
func NewAssembler(budget Budget) *Assembler {
	return &Assembler{budget: budget}
}

// Budget returns the assembler's budget.
func (a *Assembler) Budget() Budget {
	return a.budget
}

type assembly struct {
	budget  Budget
	out     *Assembly
	running int
}

func (s *assembly) emit(f Fragment) {
	f.Seq = len(s.out.Fragments)
	if f.Cost == 0 && f.Kind == KindText {
		f.Cost = EstimateCost(f.Text)
	}
	s.out.Fragments = append(s.out.Fragments, f)
	s.out.Total += f.Cost
}

// fits reports whether cost can be committed without crossing the ceiling.
func (s *assembly) fits(cost int) bool {
	return s.running+cost <= s.budget.Ceiling
}

// commit emits a budgeted text fragment.
func (s *assembly) commit(section Section, text string) {
	cost := EstimateCost(text)
	s.running += cost
	s.out.Committed += cost
	s.emit(Fragment{Section: section, Kind: KindText, Text: text, Cost: cost})
}

// mark emits an unbudgeted annotation.
func (s *assembly) mark(section Section, text string) {
	s.emit(Fragment{Section: section, Kind: KindText, Text: text, Marker: true})
}

func (s *assembly) truncate(section Section, marker string) {
	s.out.Truncated[section] = true
	s.mark(section, marker)
}

// Assemble walks profile, notes, files and integrations in priority order.
func (a *Assembler) Assemble(rec *Records, now time.Time) *Assembly {
	if rec == nil {
		rec = &Records{}
	}

	preamble := fmt.Sprintf("Current Date & Time: %s\nUser Health Data Context (sorted by timestamp where available):\n---\n",
		now.UTC().Format(timestampLayout))

	s := &assembly{
		budget: a.budget,
		out: &Assembly{
			Ceiling:   a.budget.Ceiling,
			Truncated: map[Section]bool{},
		},
	}
	s.out.Baseline = EstimateCost(preamble) + EstimateCost(headerProfile) + EstimateCost(headerNotes) +
		EstimateCost(headerFiles) + EstimateCost(headerIntegrations)
	s.running = s.out.Baseline
	s.out.Committed = s.out.Baseline

	// Baseline fragments are already accounted for in running.
	s.emit(Fragment{Section: SectionPreamble, Kind: KindText, Text: preamble})

	s.emit(Fragment{Section: SectionProfile, Kind: KindText, Text: headerProfile})
	a.assembleProfile(s, rec.Profile)

	s.emit(Fragment{Section: SectionNotes, Kind: KindText, Text: headerNotes})
	a.assembleNotes(s, rec.Notes)

	s.emit(Fragment{Section: SectionFiles, Kind: KindText, Text: headerFiles})
	a.assembleFiles(s, rec.Files)

	s.emit(Fragment{Section: SectionIntegrations, Kind: KindText, Text: headerIntegrations})
	a.assembleIntegrations(s, rec.Integrations)

	return s.out
}

func (a *Assembler) assembleProfile(s *assembly, p *models.Profile) {
	if p.IsEmpty() {
		s.mark(SectionProfile, emptyProfile)
		return
	}
	text := RenderProfile(p)
	if !s.fits(EstimateCost(text)) {
		s.truncate(SectionProfile, markerProfileTruncated)
		return
	}
	s.commit(SectionProfile, text)
}

func (a *Assembler) assembleNotes(s *assembly, notes []*models.Note) {
	sorted := sortedNotes(notes)
	if len(sorted) == 0 {
		s.mark(SectionNotes, emptyNotes)
		return
	}
	for _, n := range sorted {
		text := RenderNote(n)
		if !s.fits(EstimateCost(text)) {
			s.truncate(SectionNotes, markerNoteTruncated)
			return
		}
		s.commit(SectionNotes, text)
	}
}

func (a *Assembler) assembleFiles(s *assembly, files []*models.UploadedFile) {
	sorted := sortedFiles(files)
	if len(sorted) == 0 {
		s.mark(SectionFiles, emptyFiles)
		return
	}
	for _, f := range sorted {
		meta := RenderFileMetadata(f)
		if !s.fits(EstimateCost(meta)) {
			s.truncate(SectionFiles, markerFileTruncated)
			return
		}
		s.commit(SectionFiles, meta)

		kind := f.ContentKind()
		if !f.HasStoredContent() || kind == models.ContentKindOther {
			s.mark(SectionFiles, statusNotProcessed)
			continue
		}

		allowance, fragKind, included, skipped := a.budget.ImageAllowance, KindInlineBinary, statusImageIncluded, statusImageSkipped
		if kind == models.ContentKindPDF {
			allowance, fragKind, included, skipped = a.budget.PDFAllowance, KindExternalHandle, statusPDFIncluded, statusPDFSkipped
		}

		if !s.fits(allowance) {
			s.out.Truncated[SectionFiles] = true
			s.mark(SectionFiles, skipped)
			continue
		}
		s.mark(SectionFiles, included)
		s.running += allowance
		s.out.Committed += allowance
		s.emit(Fragment{
			Section: SectionFiles,
			Kind:    fragKind,
			Cost:    allowance,
			Pending: true,
			Source:  f,
		})
	}
}

func (a *Assembler) assembleIntegrations(s *assembly, activities []*models.IntegrationActivity) {
	sorted := sortedActivities(activities)
	if len(sorted) == 0 {
		s.mark(SectionIntegrations, emptyIntegrations)
		return
	}
	provider := ""
	for _, act := range sorted {
		text := RenderActivity(act)
		if act.Provider != provider {
			// The group heading travels with the first activity of its provider.
			text = "-- " + providerLabel(act.Provider) + " --\n" + text
		}
		if !s.fits(EstimateCost(text)) {
			s.truncate(SectionIntegrations, markerIntegrationTruncated)
			return
		}
		provider = act.Provider
		s.commit(SectionIntegrations, text)
	}
}

// RenderProfile formats the set profile facts.
func RenderProfile(p *models.Profile) string {
	var b strings.Builder
	b.WriteString("[Profile]\n")
	if p.Name != nil && *p.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", *p.Name)
	}
	if p.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *p.Age)
	}
	if p.Sex != nil && *p.Sex != "" {
		fmt.Fprintf(&b, "Sex: %s\n", *p.Sex)
	}
	if p.WeightKg != nil {
		fmt.Fprintf(&b, "Weight: %s kg\n", formatFloat(*p.WeightKg, 1))
	}
	if p.HeightCm != nil {
		fmt.Fprintf(&b, "Height: %s cm\n", formatFloat(*p.HeightCm, 1))
	}
	if p.WeightKg != nil && p.HeightCm != nil && *p.HeightCm > 0 {
		m := *p.HeightCm / 100
		fmt.Fprintf(&b, "BMI: %s\n", formatFloat(*p.WeightKg/(m*m), 1))
	}
	b.WriteString("---\n")
	return b.String()
}

// RenderNote formats one note entry.
func RenderNote(n *models.Note) string {
	return fmt.Sprintf("[Note Timestamp: %s]\n%s\n---\n", n.CreatedAt.UTC().Format(timestampLayout), n.Text)
}

// RenderFileMetadata formats the metadata line of an upload.
func RenderFileMetadata(f *models.UploadedFile) string {
	mime := "unknown"
	if f.MimeType != nil && *f.MimeType != "" {
		mime = *f.MimeType
	}
	category := "Category: unknown"
	if f.Category != nil && *f.Category != "" {
		category = "Category: " + *f.Category
		if f.Subcategory != nil && *f.Subcategory != "" {
			category += "/" + *f.Subcategory
		}
	}
	return fmt.Sprintf("[File Name: %s, Timestamp: %s, Type: %s, %s]\n",
		f.FileName, f.CreatedAt.UTC().Format(timestampLayout), mime, category)
}

// RenderActivity formats one integration activity with derived metrics.
func RenderActivity(a *models.IntegrationActivity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Activity Timestamp: %s, Source: %s, Type: %s",
		a.StartedAt.UTC().Format(timestampLayout), providerLabel(a.Provider), orUnknown(a.ActivityType))
	if a.Name != "" {
		fmt.Fprintf(&b, ", Name: %s", a.Name)
	}
	b.WriteString("]\n")

	var metrics []string
	if a.DistanceMeters != nil {
		metrics = append(metrics, "Distance: "+formatFloat(*a.DistanceMeters/1000, 2)+" km")
	}
	if a.MovingTimeSeconds != nil {
		metrics = append(metrics, "Moving time: "+formatDuration(*a.MovingTimeSeconds))
	}
	if a.ElapsedTimeSeconds != nil {
		metrics = append(metrics, "Elapsed time: "+formatDuration(*a.ElapsedTimeSeconds))
	}
	if pace, ok := a.PaceMinPerKm(); ok {
		metrics = append(metrics, "Pace: "+formatPace(pace)+" min/km")
	}
	if a.AverageHeartrate != nil {
		metrics = append(metrics, "Avg heart rate: "+formatFloat(*a.AverageHeartrate, 0)+" bpm")
	}
	if a.AverageCadence != nil {
		metrics = append(metrics, "Avg cadence: "+formatFloat(*a.AverageCadence, 0))
	}
	if a.ElevationGainMeters != nil {
		metrics = append(metrics, "Elevation gain: "+formatFloat(*a.ElevationGainMeters, 0)+" m")
	}
	if len(metrics) > 0 {
		b.WriteString(strings.Join(metrics, ", "))
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	return b.String()
}

func providerLabel(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatDuration(seconds int) string {
	return (time.Duration(seconds) * time.Second).String()
}

// formatPace renders minutes as m:ss.
func formatPace(minutes float64) string {
	total := int(math.Round(minutes * 60))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Sorting copies inputs so callers' slices are never reordered.

func sortedNotes(in []*models.Note) []*models.Note {
	out := make([]*models.Note, 0, len(in))
	for _, n := range in {
		if n != nil {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func sortedFiles(in []*models.UploadedFile) []*models.UploadedFile {
	out := make([]*models.UploadedFile, 0, len(in))
	for _, f := range in {
		if f != nil {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// sortedActivities groups by provider, newest first within each group.
func sortedActivities(in []*models.IntegrationActivity) []*models.IntegrationActivity {
	out := make([]*models.IntegrationActivity, 0, len(in))
	for _, a := range in {
		if a != nil {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

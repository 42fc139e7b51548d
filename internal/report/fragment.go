package report

import (
	"strings"

	"github.com/benvon/health-report/internal/models"
)

// Kind is the content type of a fragment.
type Kind int

const (
	// KindText is plain prompt text.
	KindText Kind = iota
	// KindInlineBinary carries image bytes inline as a data URI.
	KindInlineBinary
	// KindExternalHandle references a file uploaded to the generator.
	KindExternalHandle
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInlineBinary:
		return "inline_binary"
	case KindExternalHandle:
		return "external_handle"
	default:
		return "unknown"
	}
}

// Section is the data category a fragment belongs to.
type Section string

const (
	SectionPreamble     Section = "preamble"
	SectionProfile      Section = "profile"
	SectionNotes        Section = "notes"
	SectionFiles        Section = "files"
	SectionIntegrations Section = "integrations"
)

// Fragment is one ordered piece of the generator prompt. Fragments live for a
// single report request.
type Fragment struct {
	// Seq is the fragment's position in the assembled prompt.
	Seq     int
	Section Section
	Kind    Kind
	Text    string
	// Cost is in cost units (see EstimateCost). For binary fragments it is the
	// reserved allowance.
	Cost int
	// Marker is set on fixed annotations: truncation markers, empty-section lines
	// and content status lines. Marker cost is never counted against the ceiling.
	Marker bool

	// Pending is true for a binary fragment whose content has not been fetched yet.
	Pending bool
	// Source is the upload a binary fragment was built from.
	Source *models.UploadedFile
	// DataURI holds resolved inline image content.
	DataURI string
	// FileID holds the generator-side handle of a resolved external upload.
	FileID string
}

// IsBinary reports whether the fragment carries non-text content.
func (f Fragment) IsBinary() bool {
	return f.Kind == KindInlineBinary || f.Kind == KindExternalHandle
}

// Render concatenates the text of the fragments, with placeholders for binary content.
func Render(fragments []Fragment) string {
	var b strings.Builder
	for _, f := range fragments {
		switch f.Kind {
		case KindText:
			b.WriteString(f.Text)
		case KindInlineBinary:
			b.WriteString("<image: " + sourceName(f) + ">\n")
		case KindExternalHandle:
			b.WriteString("<document: " + sourceName(f) + ">\n")
		}
	}
	return b.String()
}

func sourceName(f Fragment) string {
	if f.Source == nil {
		return "unknown"
	}
	return f.Source.FileName
}

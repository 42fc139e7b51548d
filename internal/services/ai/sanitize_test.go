package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitizePromptRedactsImages(t *testing.T) {
	t.Parallel()
	in := "before data:image/png;base64,iVBORw0KGgo= after"
	got := SanitizePrompt(in, true)
	if strings.Contains(got, "iVBORw0KGgo") {
		t.Errorf("payload leaked: %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text lost: %q", got)
	}
}

func TestSanitizePromptPreviewLength(t *testing.T) {
	t.Parallel()
	got := SanitizePrompt(strings.Repeat("x", 1000), false)
	if len(got) != MaxPreviewLength+len("...") {
		t.Errorf("preview length = %d", len(got))
	}
}

func TestContextIDs(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	ctx := WithRequestID(WithUserID(context.Background(), id.String()), "req-1")
	if ExtractUserID(ctx) != id.String() {
		t.Errorf("ExtractUserID() = %q", ExtractUserID(ctx))
	}
	if ExtractRequestID(ctx) != "req-1" {
		t.Errorf("ExtractRequestID() = %q", ExtractRequestID(ctx))
	}
	if ExtractUserID(context.Background()) != "" {
		t.Error("expected empty user id")
	}
	if h := HashUserID(id.String()); len(h) != 16 || h == id.String()[:16] {
		t.Errorf("unexpected hash %q", h)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()
	if got := SanitizeAPIKey("sk-1234567890abcd"); got != "sk-1"+RedactedValue+"abcd" {
		t.Errorf("SanitizeAPIKey() = %q", got)
	}
	if got := SanitizeAPIKey("short"); got != RedactedValue {
		t.Errorf("SanitizeAPIKey(short) = %q", got)
	}
}

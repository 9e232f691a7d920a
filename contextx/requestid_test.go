package contextx

import (
	"strings"
	"testing"
)

func TestWithRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(t.Context(), "req-abc-123")
	got := RequestIDFromContext(ctx)
	if got != "req-abc-123" {
		t.Fatalf("got %q, want %q", got, "req-abc-123")
	}
}

func TestRequestIDFromContextMissing(t *testing.T) {
	got := RequestIDFromContext(t.Context())
	if got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestValidRequestID(t *testing.T) {
	for id, want := range map[string]bool{
		"req-abc_1.2":           true,
		NewRequestID():          true,
		"":                      false,
		"has space":             false,
		"line\nbreak":           false,
		strings.Repeat("a", 65): false,
	} {
		if got := ValidRequestID(id); got != want {
			t.Errorf("ValidRequestID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 32 {
		t.Fatalf("got length %d, want 32", len(a))
	}
	if a == b {
		t.Fatal("expected distinct IDs")
	}
}

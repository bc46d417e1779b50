package env

import "testing"

func TestGetPrefersPrefixedVariable(t *testing.T) {
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("MISSIONS_LOG_FORMAT", "json")

	if got := Get("LOG_FORMAT", "text"); got != "json" {
		t.Fatalf("expected prefixed value, got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("MISSIONS_LOG_FORMAT", " ")
	t.Setenv("LOG_FORMAT", "")

	if got := Get("LOG_FORMAT", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

package logging

import "testing"

func TestRedactDisabledByDefault(t *testing.T) {
	SetRedaction(false)
	in := "écris à eleve@example.com"
	if got := Redact(in); got != in {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestRedactEmailAndPhone(t *testing.T) {
	SetRedaction(true)
	defer SetRedaction(false)
	got := Redact("mail eleve@example.com ou appelle 06 12 34 56 78")
	if got != "mail [REDACTED_EMAIL] ou appelle [REDACTED_PHONE]" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}

func TestClipCountsRunes(t *testing.T) {
	if got := Clip("  égalité  ", 3); got != "éga..." {
		t.Fatalf("unexpected clip: %q", got)
	}
	if got := Clip("court", 10); got != "court" {
		t.Fatalf("unexpected clip: %q", got)
	}
}

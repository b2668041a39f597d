package logging

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var redactEnabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetRedaction toggles PII scrubbing of logged transcripts and replies.
func SetRedaction(v bool) {
	redactEnabled.Store(v)
}

// Redact scrubs emails and phone numbers when redaction is enabled.
func Redact(in string) string {
	if !redactEnabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	return phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
}

// Clip trims text and shortens it to max runes, appending "..." when cut.
func Clip(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return string(r[:max]) + "..."
}

// SafeText is Redact followed by Clip, for log attributes carrying user speech.
func SafeText(text string, max int) string {
	return Clip(Redact(text), max)
}

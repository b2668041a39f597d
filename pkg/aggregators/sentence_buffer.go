package aggregators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SentenceBufferConfig tunes the latency/completeness trade-off.
type SentenceBufferConfig struct {
	// MinChars is the shortest unit emitted on a sentence delimiter, and the
	// earliest rune index a clause delimiter may split at.
	MinChars int
	// MaxChars is the buffer length that forces a clause or word split.
	MaxChars int
	// FirstMinChars replaces MinChars for the first unit so speech starts early.
	FirstMinChars int
	MaxHistory    int
}

func (c SentenceBufferConfig) withDefaults() SentenceBufferConfig {
	if c.MinChars <= 0 {
		c.MinChars = 5
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 50
	}
	if c.MaxChars < c.MinChars {
		c.MaxChars = c.MinChars
	}
	if c.FirstMinChars <= 0 {
		c.FirstMinChars = 5
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 10
	}
	return c
}

// SentenceBuffer accumulates streamed tokens into speakable units. It is not
// safe for concurrent use.
type SentenceBuffer struct {
	cfg       SentenceBufferConfig
	buf       string
	firstSent bool
	history   []string
}

func NewSentenceBuffer(cfg SentenceBufferConfig) *SentenceBuffer {
	return &SentenceBuffer{cfg: cfg.withDefaults()}
}

func (b *SentenceBuffer) Config() SentenceBufferConfig { return b.cfg }

// Add appends tok and returns a unit when a boundary rule fires. Only one unit
// is returned per call; call Add("") to pull further complete units.
func (b *SentenceBuffer) Add(tok string) (string, bool) {
	b.buf += tok

	if unit, ok := b.splitSentence(); ok {
		return b.emit(unit)
	}
	if utf8.RuneCountInString(b.buf) >= b.cfg.MaxChars {
		if unit, ok := b.splitClause(); ok {
			return b.emit(unit)
		}
		if unit, ok := b.splitWords(); ok {
			return b.emit(unit)
		}
	}
	return "", false
}

// Flush returns whatever is left, unconditionally. Call once at end of stream.
func (b *SentenceBuffer) Flush() (string, bool) {
	out := strings.TrimSpace(b.buf)
	b.buf = ""
	if out == "" {
		return "", false
	}
	return b.emit(out)
}

// Reset clears the buffer and the first-unit flag for a new reply.
func (b *SentenceBuffer) Reset() {
	b.buf = ""
	b.firstSent = false
}

// Pending is the not yet emitted text.
func (b *SentenceBuffer) Pending() string { return b.buf }

// History returns the most recent emitted units, oldest first.
func (b *SentenceBuffer) History() []string {
	out := make([]string, len(b.history))
	copy(out, b.history)
	return out
}

func (b *SentenceBuffer) minChars() int {
	if !b.firstSent {
		return b.cfg.FirstMinChars
	}
	return b.cfg.MinChars
}

// splitSentence cuts at the first sentence delimiter whose candidate is long
// enough. Shorter candidates (abbreviations) stay at the head of the buffer and
// the scan moves on to the next delimiter.
func (b *SentenceBuffer) splitSentence() (string, bool) {
	min := b.minChars()
	for i := 0; i < len(b.buf); {
		r, size := utf8.DecodeRuneInString(b.buf[i:])
		end := i + size
		i = end
		if !isSentenceDelimiter(r) || !b.isBoundary(end-size, r) {
			continue
		}
		candidate := strings.TrimSpace(b.buf[:end])
		if candidate == "" {
			b.buf = b.buf[end:]
			i = 0
			continue
		}
		if utf8.RuneCountInString(candidate) >= min {
			b.buf = b.buf[end:]
			return candidate, true
		}
	}
	return "", false
}

// isBoundary keeps decimal points inside numbers. A period right after a digit
// at the very end of the buffer waits for the next token.
func (b *SentenceBuffer) isBoundary(pos int, r rune) bool {
	if r != '.' || pos == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(b.buf[:pos])
	if !unicode.IsDigit(prev) {
		return true
	}
	next := pos + 1
	if next >= len(b.buf) {
		return false
	}
	nr, _ := utf8.DecodeRuneInString(b.buf[next:])
	return !unicode.IsDigit(nr)
}

func (b *SentenceBuffer) splitClause() (string, bool) {
	idx := 0
	for i, r := range b.buf {
		if idx >= b.cfg.MinChars && isClauseDelimiter(r) {
			end := i + utf8.RuneLen(r)
			candidate := strings.TrimSpace(b.buf[:end])
			if candidate == "" {
				return "", false
			}
			b.buf = b.buf[end:]
			return candidate, true
		}
		idx++
	}
	return "", false
}

// splitWords forces a cut before word floor(n/2) once more than three words are
// buffered without any usable delimiter.
func (b *SentenceBuffer) splitWords() (string, bool) {
	starts := wordStarts(b.buf)
	if len(starts) <= 3 {
		return "", false
	}
	cut := starts[len(starts)/2]
	candidate := strings.TrimSpace(b.buf[:cut])
	if candidate == "" {
		return "", false
	}
	b.buf = b.buf[cut:]
	return candidate, true
}

func (b *SentenceBuffer) emit(unit string) (string, bool) {
	b.firstSent = true
	b.appendHistory(unit)
	return unit, true
}

func (b *SentenceBuffer) appendHistory(text string) {
	b.history = append(b.history, text)
	if len(b.history) > b.cfg.MaxHistory {
		b.history = b.history[len(b.history)-b.cfg.MaxHistory:]
	}
}

func wordStarts(s string) []int {
	var starts []int
	inWord := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			starts = append(starts, i)
		}
		inWord = !space
	}
	return starts
}

func isSentenceDelimiter(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

func isClauseDelimiter(r rune) bool {
	switch r {
	case ',', ';', ':', '—', '–':
		return true
	}
	return false
}

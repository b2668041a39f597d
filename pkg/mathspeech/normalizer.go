// Package mathspeech rewrites mathematical notation into spoken French so a
// synthesizer reads "x² + 2x - 4 = 0" as "x au carré plus 2x moins 4 égale 0".
package mathspeech

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	superscriptRun = regexp.MustCompile(`([a-zA-Z0-9])([⁰¹²³⁴⁵⁶⁷⁸⁹ⁿ]+)`)
	subscriptRun   = regexp.MustCompile(`([a-zA-Z])([₀₁₂₃₄₅₆₇₈₉ₙₓ]+)`)
	caretPower     = regexp.MustCompile(`([a-zA-Z0-9])\^(\d+|n)`)
	slashFraction  = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

var (
	glyphReplacer  = newPaddedReplacer(fractionGlyphs)
	symbolReplacer = newPaddedReplacer(symbols)
)

// pauses are applied one after another, so a later rule sees the commas an
// earlier one inserted.
var pauses = [][2]string{
	{" égale ", " égale, "},
	{" donc ", " donc, "},
	{" où ", ", où "},
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithoutPauses disables the comma pauses inserted after "égale" and "donc"
// and before "où".
func WithoutPauses() Option {
	return func(n *Normalizer) { n.pauses = false }
}

// WithReplacements adds literal phrase replacements applied after the symbol
// table. Longer keys win over their prefixes.
func WithReplacements(repl map[string]string) Option {
	return func(n *Normalizer) {
		keys := make([]string, 0, len(repl))
		for k := range repl {
			if k != "" {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		args := make([]string, 0, 2*len(keys))
		for _, k := range keys {
			args = append(args, k, repl[k])
		}
		if len(args) > 0 {
			n.extra = strings.NewReplacer(args...)
		}
	}
}

// Normalizer is immutable after New and safe for concurrent use.
type Normalizer struct {
	pauses bool
	extra  *strings.Replacer
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{pauses: true}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Convert never fails; text without notation comes back trimmed with its
// whitespace collapsed.
func (n *Normalizer) Convert(text string) string {
	out := glyphReplacer.Replace(text)
	out = superscriptRun.ReplaceAllStringFunc(out, func(m string) string {
		parts := superscriptRun.FindStringSubmatch(m)
		return spokenPower(parts[1], translate(parts[2], superscriptDigits))
	})
	out = subscriptRun.ReplaceAllStringFunc(out, func(m string) string {
		parts := subscriptRun.FindStringSubmatch(m)
		return parts[1] + " indice " + translate(parts[2], subscriptDigits)
	})
	out = caretPower.ReplaceAllStringFunc(out, func(m string) string {
		parts := caretPower.FindStringSubmatch(m)
		return spokenPower(parts[1], parts[2])
	})
	out = slashFraction.ReplaceAllStringFunc(out, func(m string) string {
		parts := slashFraction.FindStringSubmatch(m)
		if spoken, ok := slashFractions[parts[1]+"/"+parts[2]]; ok {
			return spoken
		}
		return parts[1] + " sur " + parts[2]
	})
	out = symbolReplacer.Replace(out)
	if n.extra != nil {
		out = n.extra.Replace(out)
	}
	out = strings.ReplaceAll(out, "*", " multiplié par ")
	out = whitespaceRun.ReplaceAllString(out, " ")
	if n.pauses {
		for _, p := range pauses {
			out = strings.ReplaceAll(out, p[0], p[1])
		}
		out = spacePeriods(out)
	}
	return strings.TrimSpace(out)
}

func spokenPower(base, power string) string {
	switch power {
	case "2":
		return base + " au carré"
	case "3":
		return base + " au cube"
	default:
		return base + " puissance " + power
	}
}

func translate(s string, table map[rune]rune) string {
	var b strings.Builder
	for _, r := range s {
		if mapped, ok := table[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	return b.String()
}

// spacePeriods makes sure every period is followed by whitespace, except
// decimal points between two digits.
func spacePeriods(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range runes {
		b.WriteRune(r)
		if r != '.' {
			continue
		}
		if i+1 < len(runes) {
			next := runes[i+1]
			if unicode.IsSpace(next) {
				continue
			}
			if i > 0 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(next) {
				continue
			}
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func newPaddedReplacer(table []pair) *strings.Replacer {
	args := make([]string, 0, 2*len(table))
	for _, p := range table {
		args = append(args, p.from, " "+p.to+" ")
	}
	return strings.NewReplacer(args...)
}

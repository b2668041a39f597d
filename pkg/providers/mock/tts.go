package mock

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/audio"
)

var errMockSynthesis = errors.New("mock synthesis failure")

type TTSConfig struct {
	SampleRate int
	// PerRune is the silent audio length produced per input rune.
	PerRune time.Duration
	// Delay simulates vendor latency; it honours ctx.
	Delay time.Duration
	// Fail decides which units return Err.
	Fail func(text string) bool
	Err  error
}

// Synthesizer returns silent WAV audio sized after the input text.
type Synthesizer struct {
	cfg TTSConfig

	mu    sync.Mutex
	texts []string
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.PerRune == 0 {
		cfg.PerRune = 10 * time.Millisecond
	}
	if cfg.Err == nil {
		cfg.Err = errMockSynthesis
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.cfg.Delay > 0 {
		t := time.NewTimer(s.cfg.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if s.cfg.Fail != nil && s.cfg.Fail(text) {
		return nil, s.cfg.Err
	}
	d := time.Duration(utf8.RuneCountInString(text)) * s.cfg.PerRune
	samples := int(int64(d) * int64(s.cfg.SampleRate) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return audio.EncodePCM16(make([]byte, samples*2), s.cfg.SampleRate)
}

// Texts returns the units received so far.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

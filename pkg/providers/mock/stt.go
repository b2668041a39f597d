package mock

import (
	"context"
	"sync/atomic"

	"github.com/harunnryd/tutorvoice/pkg/adapters/stt"
	"github.com/harunnryd/tutorvoice/pkg/frames"
)

type STTConfig struct {
	// Transcripts are returned in order, the last one repeating.
	Transcripts []string
	Err         error
}

type Transcriber struct {
	cfg   STTConfig
	calls atomic.Int64
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Transcribe(ctx context.Context, seg frames.SpeechSegment) (string, error) {
	n := t.calls.Add(1)
	if t.cfg.Err != nil {
		return "", t.cfg.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(t.cfg.Transcripts) == 0 || seg.IsEmpty() {
		return "", nil
	}
	i := int(n - 1)
	if i >= len(t.cfg.Transcripts) {
		i = len(t.cfg.Transcripts) - 1
	}
	return t.cfg.Transcripts[i], nil
}

func (t *Transcriber) Calls() int { return int(t.calls.Load()) }

var _ stt.Transcriber = (*Transcriber)(nil)

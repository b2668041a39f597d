package stt

import (
	"context"

	"github.com/harunnryd/tutorvoice/pkg/frames"
)

// Transcriber converts one finished speech segment into text. An empty
// transcript with a nil error means nothing intelligible was said.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Transcribe(ctx context.Context, seg frames.SpeechSegment) (string, error)
}

// Func adapts a plain function to Transcriber.
type Func func(ctx context.Context, seg frames.SpeechSegment) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Transcribe(ctx context.Context, seg frames.SpeechSegment) (string, error) {
	return f(ctx, seg)
}

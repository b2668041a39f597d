package tts

import "context"

// Synthesizer turns one speakable unit into an encoded audio payload (WAV
// unless the vendor says otherwise). Implementations must be safe to call
// from a single worker goroutine per pipeline and must clean up any scratch
// files before returning.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Func adapts a plain function to Synthesizer.
type Func func(ctx context.Context, text string) ([]byte, error)

func (f Func) Name() string { return "func" }

func (f Func) Synthesize(ctx context.Context, text string) ([]byte, error) { return f(ctx, text) }

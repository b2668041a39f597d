package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/audio"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/metrics"
	"github.com/harunnryd/tutorvoice/pkg/resilience"
)

type fakeSynth struct {
	mu      sync.Mutex
	texts   []string
	fail    func(string) bool
	block   chan struct{}
	entered chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.fail != nil && f.fail(text) {
		return nil, errors.New("vendor down")
	}
	return audio.EncodePCM16(make([]byte, 3200), 16000)
}

func (f *fakeSynth) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func collect(t *testing.T, p *Pipeline) []frames.AudioChunk {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []frames.AudioChunk
	for chunk := range p.IterAudio(ctx) {
		out = append(out, chunk)
	}
	if ctx.Err() != nil {
		t.Fatalf("IterAudio did not complete, got %d chunks", len(out))
	}
	return out
}

func fast(opts ...Option) []Option {
	return append([]Option{WithPollInterval(10 * time.Millisecond)}, opts...)
}

func TestPipelineOrdersChunks(t *testing.T) {
	synth := &fakeSynth{}
	p := New(synth, fast()...)
	p.Start(context.Background())
	units := []string{"Un.", "Deux.", "Trois.", "Quatre.", "Cinq."}
	for _, u := range units {
		p.AddText(u)
	}
	p.FinishGeneration()

	chunks := collect(t, p)
	if len(chunks) != len(units) {
		t.Fatalf("expected %d chunks, got %d", len(units), len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i || c.Text != units[i] {
			t.Fatalf("chunk %d: index=%d text=%q", i, c.Index, c.Text)
		}
		if c.Duration != 100*time.Millisecond {
			t.Fatalf("chunk %d: duration %v", i, c.Duration)
		}
	}
	if p.State() != StateDraining {
		t.Fatalf("expected DRAINING, got %s", p.State())
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if synth.maxActive.Load() != 1 {
		t.Fatalf("expected a single worker, saw %d concurrent calls", synth.maxActive.Load())
	}
}

func TestPipelineDroppedUnitsDoNotConsumeIndex(t *testing.T) {
	synth := &fakeSynth{fail: func(s string) bool { return strings.HasPrefix(s, "panne") }}
	obs := metrics.NewMemoryObserver()
	var mu sync.Mutex
	var drops []Drop
	p := New(synth, fast(
		WithObserver(obs),
		WithDropHandler(func(d Drop) {
			mu.Lock()
			drops = append(drops, d)
			mu.Unlock()
		}),
	)...)
	p.Start(context.Background())
	for _, u := range []string{"alpha", "panne un", "beta", "panne deux", "gamma"} {
		p.AddText(u)
	}
	p.FinishGeneration()

	chunks := collect(t, p)
	want := []string{"alpha", "beta", "gamma"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i || c.Text != want[i] {
			t.Fatalf("chunk %d: index=%d text=%q", i, c.Index, c.Text)
		}
	}
	if p.Dropped() != 2 {
		t.Fatalf("expected 2 dropped, got %d", p.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(drops) != 2 || drops[0].Text != "panne un" || drops[0].Reason != errorsx.ReasonTTSSynthesize {
		t.Fatalf("unexpected drops %+v", drops)
	}
	if obs.Count(metrics.EventTTSUnitDropped) != 2 || obs.Count(metrics.EventTTSUnitReady) != 3 {
		t.Fatalf("unexpected events %+v", obs.Events())
	}
	if obs.Count(metrics.EventTTSFirstAudio) != 1 {
		t.Fatalf("expected one first-audio event")
	}
	_ = p.Stop()
}

func TestPipelineInputExhaustion(t *testing.T) {
	p := New(&fakeSynth{}, fast()...)
	p.Start(context.Background())
	p.FinishGeneration()
	if chunks := collect(t, p); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPipelineNormalizesBeforeSynthesis(t *testing.T) {
	synth := &fakeSynth{}
	p := New(synth, fast()...)
	p.Start(context.Background())
	p.AddText("  x² = 4  ")
	p.AddText("   ")
	p.FinishGeneration()
	chunks := collect(t, p)
	if len(chunks) != 1 || chunks[0].Text != "x² = 4" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if got := synth.received(); len(got) != 1 || got[0] != "x au carré égale, 4" {
		t.Fatalf("synthesizer received %q", got)
	}
	_ = p.Stop()
}

func TestPipelineWithoutNormalizer(t *testing.T) {
	synth := &fakeSynth{}
	p := New(synth, fast(WithNormalizer(nil))...)
	p.Start(context.Background())
	p.AddText("x² = 4")
	p.FinishGeneration()
	collect(t, p)
	if got := synth.received(); len(got) != 1 || got[0] != "x² = 4" {
		t.Fatalf("synthesizer received %q", got)
	}
	_ = p.Stop()
}

func TestPipelineStopBeforeStartIsNoop(t *testing.T) {
	p := New(&fakeSynth{})
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.State() != StateNew {
		t.Fatalf("expected NEW, got %s", p.State())
	}
	if _, ok := p.GetAudio(10 * time.Millisecond); ok {
		t.Fatalf("expected no audio before start")
	}
	p.AddText("ignored")
	p.FinishGeneration()
}

func TestPipelineDoubleStartKeepsOneRun(t *testing.T) {
	synth := &fakeSynth{}
	p := New(synth, fast()...)
	p.Start(context.Background())
	first := p.current()
	p.Start(context.Background())
	if p.current() != first {
		t.Fatalf("second Start must not replace the active run")
	}
	for i := 0; i < 20; i++ {
		p.AddText("unité")
	}
	p.FinishGeneration()
	chunks := collect(t, p)
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("expected index %d, got %d", i, c.Index)
		}
	}
	if len(chunks) != 20 || synth.maxActive.Load() != 1 {
		t.Fatalf("chunks=%d maxActive=%d", len(chunks), synth.maxActive.Load())
	}
	_ = p.Stop()
}

func TestPipelineRestartResetsIndex(t *testing.T) {
	p := New(&fakeSynth{}, fast()...)
	for round := 0; round < 2; round++ {
		p.Start(context.Background())
		p.AddText("premier")
		p.AddText("second")
		p.FinishGeneration()
		chunks := collect(t, p)
		if len(chunks) != 2 || chunks[0].Index != 0 || chunks[1].Index != 1 {
			t.Fatalf("round %d: unexpected chunks %+v", round, chunks)
		}
		if err := p.Stop(); err != nil {
			t.Fatalf("round %d: stop: %v", round, err)
		}
		if p.State() != StateStopped {
			t.Fatalf("round %d: expected STOPPED, got %s", round, p.State())
		}
	}
}

func TestPipelineParentCancelStopsRun(t *testing.T) {
	synth := &fakeSynth{}
	p := New(synth, fast()...)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	p.AddText("Bonjour tout le monde")
	if got := p.State(); got != StateStopped {
		t.Fatalf("expected STOPPED after parent cancel, got %s", got)
	}

	p.Start(context.Background())
	defer p.Stop()
	if got := p.State(); got != StateRunning {
		t.Fatalf("expected a fresh RUNNING run, got %s", got)
	}
	p.AddText("Bonjour tout le monde")
	chunk, ok := p.GetAudio(2 * time.Second)
	if !ok || chunk.Index != 0 || chunk.Text != "Bonjour tout le monde" {
		t.Fatalf("unexpected chunk %+v ok=%v", chunk, ok)
	}
	if got := synth.received(); len(got) != 1 {
		t.Fatalf("expected one synthesis call, got %q", got)
	}
}

func TestPipelineGetAudio(t *testing.T) {
	p := New(&fakeSynth{}, fast()...)
	p.Start(context.Background())
	defer p.Stop()
	if _, ok := p.GetAudio(20 * time.Millisecond); ok {
		t.Fatalf("expected timeout on empty queue")
	}
	p.AddText("bonjour")
	chunk, ok := p.GetAudio(2 * time.Second)
	if !ok || chunk.Index != 0 || chunk.Text != "bonjour" {
		t.Fatalf("unexpected chunk %+v ok=%v", chunk, ok)
	}
}

func TestPipelineStopTimeout(t *testing.T) {
	synth := &fakeSynth{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := New(synth, fast(WithJoinTimeout(50*time.Millisecond))...)
	p.Start(context.Background())
	p.AddText("bloqué")
	select {
	case <-synth.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("synthesizer never called")
	}
	err := p.Stop()
	close(synth.block)
	if !errorsx.HasReason(err, errorsx.ReasonShutdownTimeout) {
		t.Fatalf("expected shutdown timeout, got %v", err)
	}
	if p.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", p.State())
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop must be a no-op, got %v", err)
	}
}

func TestPipelineConcurrentStop(t *testing.T) {
	p := New(&fakeSynth{}, fast()...)
	p.Start(context.Background())
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Stop()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	}
	if p.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", p.State())
	}
}

func TestPipelineIterEndsAfterStop(t *testing.T) {
	p := New(&fakeSynth{}, fast()...)
	p.Start(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range p.IterAudio(context.Background()) {
		}
	}()
	time.Sleep(20 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("IterAudio kept blocking after Stop")
	}
}

func TestPipelineBreakerDropsWithoutCalling(t *testing.T) {
	synth := &fakeSynth{fail: func(string) bool { return true }}
	breaker := resilience.NewCircuitBreaker(1, time.Minute).TripOn(func(err error) bool { return err != nil })
	var reasons []errorsx.ReasonCode
	var mu sync.Mutex
	p := New(synth, fast(
		WithBreaker(breaker),
		WithDropHandler(func(d Drop) {
			mu.Lock()
			reasons = append(reasons, d.Reason)
			mu.Unlock()
		}),
	)...)
	p.Start(context.Background())
	p.AddText("premier")
	p.AddText("second")
	p.FinishGeneration()
	collect(t, p)
	_ = p.Stop()

	if got := len(synth.received()); got != 1 {
		t.Fatalf("expected one synthesizer call, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 2 || reasons[0] != errorsx.ReasonTTSSynthesize || reasons[1] != errorsx.ReasonTTSCircuitOpen {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	synth := &fakeSynth{fail: func(string) bool { return calls.Add(1) == 1 }}
	p := New(synth, fast(WithRetry(resilience.NewRetryPolicy(1, time.Millisecond)))...)
	p.Start(context.Background())
	p.AddText("encore")
	p.FinishGeneration()
	chunks := collect(t, p)
	_ = p.Stop()
	if len(chunks) != 1 || p.Dropped() != 0 {
		t.Fatalf("expected retry to recover, chunks=%d dropped=%d", len(chunks), p.Dropped())
	}
}

// Package synthesis turns a stream of speakable units into audio chunks with
// one background worker per run, preserving input order in the chunk indices.
package synthesis

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/audio"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/mathspeech"
	"github.com/harunnryd/tutorvoice/pkg/metrics"
	"github.com/harunnryd/tutorvoice/pkg/resilience"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultJoinTimeout  = 2 * time.Second
	iterPollInterval    = 200 * time.Millisecond
)

type State int32

const (
	StateNew State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of synthesizing one unit.
type Outcome int

const (
	OutcomeSynthesized Outcome = iota
	OutcomeDropped
)

// Drop describes a unit that produced no audio.
type Drop struct {
	Text   string
	Reason errorsx.ReasonCode
	Err    error
}

type DropHandler func(Drop)

type Option func(*Pipeline)

// WithNormalizer replaces the default math normalizer; nil sends text as is.
func WithNormalizer(n *mathspeech.Normalizer) Option {
	return func(p *Pipeline) { p.norm = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = logging.NewComponentLogger(l, "synthesis")
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(p *Pipeline) {
		if obs != nil {
			p.obs = obs
		}
	}
}

// WithPollInterval sets how long the worker waits on an empty queue before
// re-checking whether the run is still active.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithJoinTimeout bounds how long Stop waits for the worker.
func WithJoinTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.joinTimeout = d
		}
	}
}

func WithRetry(r resilience.RetryPolicy) Option {
	return func(p *Pipeline) { p.retry = r }
}

func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(p *Pipeline) { p.breaker = b }
}

// WithDropHandler is called from the worker goroutine for every dropped unit.
func WithDropHandler(fn DropHandler) Option {
	return func(p *Pipeline) { p.onDrop = fn }
}

type message struct {
	end  bool
	text string
}

// run holds everything owned by one Start..Stop cycle. A worker abandoned by
// a timed out Stop keeps writing to its own run only.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	pending *fifo[message]
	ready   *fifo[frames.AudioChunk]
	next    int // worker only

	running      atomic.Bool
	dropped      atomic.Int64
	complete     chan struct{}
	completeOnce sync.Once
	done         chan struct{}

	started    time.Time
	firstAudio sync.Once
}

func (r *run) markComplete() {
	r.completeOnce.Do(func() { close(r.complete) })
}

func (r *run) isComplete() bool {
	select {
	case <-r.complete:
		return true
	default:
		return false
	}
}

// Pipeline is the ordered synthesis scheduler for one session. All methods
// are safe for concurrent use.
type Pipeline struct {
	synth       tts.Synthesizer
	norm        *mathspeech.Normalizer
	log         *slog.Logger
	obs         metrics.Observer
	poll        time.Duration
	joinTimeout time.Duration
	retry       resilience.RetryPolicy
	breaker     *resilience.CircuitBreaker
	onDrop      DropHandler

	mu    sync.Mutex
	state State
	run   *run
}

func New(synth tts.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:       synth,
		norm:        mathspeech.New(),
		log:         logging.NewComponentLogger(slog.Default(), "synthesis"),
		obs:         metrics.NoopObserver{},
		poll:        DefaultPollInterval,
		joinTimeout: DefaultJoinTimeout,
		retry:       resilience.NoRetry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settleLocked()
	return p.state
}

// settleLocked moves an active run whose context has ended to STOPPED. The
// worker exits on its own once r.ctx is done.
func (p *Pipeline) settleLocked() {
	if p.state != StateRunning && p.state != StateDraining {
		return
	}
	r := p.run
	if r == nil || r.ctx.Err() == nil {
		return
	}
	r.running.Store(false)
	p.state = StateStopped
	p.log.Debug("synthesis run cancelled",
		slog.String("cause", r.ctx.Err().Error()),
		slog.Int64("dropped", r.dropped.Load()))
}

// Dropped is the number of units dropped in the current run.
func (p *Pipeline) Dropped() int {
	if r := p.current(); r != nil {
		return int(r.dropped.Load())
	}
	return 0
}

func (p *Pipeline) current() *run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run
}

// Start begins a fresh run with empty queues and index 0. It does nothing
// while a run is active.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settleLocked()
	if p.state != StateNew && p.state != StateStopped {
		return
	}
	if p.run != nil {
		p.run.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		ctx:      runCtx,
		cancel:   cancel,
		pending:  newFIFO[message](),
		ready:    newFIFO[frames.AudioChunk](),
		complete: make(chan struct{}),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	r.running.Store(true)
	p.run = r
	p.state = StateRunning
	go p.work(r)
	p.log.Debug("synthesis run started", slog.String("synthesizer", p.synth.Name()))
}

// AddText queues one unit. Blank units and units added outside a running
// run are ignored.
func (p *Pipeline) AddText(unit string) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return
	}
	p.mu.Lock()
	p.settleLocked()
	r, state := p.run, p.state
	p.mu.Unlock()
	if state != StateRunning {
		p.log.Debug("unit ignored, pipeline not running",
			slog.String("state", state.String()),
			slog.String("text", logging.SafeText(unit, 60)))
		return
	}
	r.pending.push(message{text: unit})
}

// FinishGeneration marks the end of input. Units already queued are still
// synthesized before completion is signalled.
func (p *Pipeline) FinishGeneration() {
	p.mu.Lock()
	p.settleLocked()
	r, state := p.run, p.state
	p.mu.Unlock()
	if state != StateRunning {
		return
	}
	r.pending.push(message{end: true})
}

// GetAudio returns the next chunk, waiting up to timeout.
func (p *Pipeline) GetAudio(timeout time.Duration) (frames.AudioChunk, bool) {
	r := p.current()
	if r == nil {
		return frames.AudioChunk{}, false
	}
	return r.ready.pop(context.Background(), timeout)
}

// IterAudio yields chunks in index order until the run has completed and
// every chunk was consumed, the run was stopped, or ctx ends.
func (p *Pipeline) IterAudio(ctx context.Context) iter.Seq[frames.AudioChunk] {
	return func(yield func(frames.AudioChunk) bool) {
		r := p.current()
		if r == nil {
			return
		}
		for ctx.Err() == nil {
			if chunk, ok := r.ready.pop(ctx, iterPollInterval); ok {
				if !yield(chunk) {
					return
				}
				continue
			}
			if r.ready.len() > 0 {
				continue
			}
			if r.isComplete() || r.ctx.Err() != nil {
				return
			}
		}
	}
}

// Stop ends the current run and waits for the worker up to the join timeout.
// On timeout the worker is abandoned and an error with
// errorsx.ReasonShutdownTimeout is returned.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state == StateNew || p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopped
	r := p.run
	p.mu.Unlock()

	r.running.Store(false)
	r.pending.push(message{end: true})
	r.cancel()

	t := time.NewTimer(p.joinTimeout)
	defer t.Stop()
	select {
	case <-r.done:
		p.log.Debug("synthesis run stopped", slog.Int("unread_chunks", r.ready.len()), slog.Int64("dropped", r.dropped.Load()))
		return nil
	case <-t.C:
		p.log.Warn("synthesis worker did not stop in time",
			slog.String("reason_code", string(errorsx.ReasonShutdownTimeout)),
			slog.Duration("join_timeout", p.joinTimeout))
		p.obs.RecordEvent(metrics.Count(metrics.EventShutdownTimeout, map[string]string{"component": "synthesis"}))
		return errorsx.Errorf(errorsx.ReasonShutdownTimeout, "synthesis worker still running after %s", p.joinTimeout)
	}
}

func (p *Pipeline) work(r *run) {
	defer close(r.done)
	defer r.markComplete()
	for r.running.Load() {
		msg, ok := r.pending.pop(r.ctx, p.poll)
		if !ok {
			if r.ctx.Err() != nil {
				p.mu.Lock()
				if p.run == r {
					p.settleLocked()
				}
				p.mu.Unlock()
				return
			}
			continue
		}
		if msg.end {
			p.finish(r)
			return
		}
		p.process(r, msg.text)
	}
}

func (p *Pipeline) finish(r *run) {
	p.mu.Lock()
	if p.run == r && p.state == StateRunning {
		p.state = StateDraining
	}
	p.mu.Unlock()
	r.markComplete()
}

func (p *Pipeline) process(r *run, text string) {
	spoken := text
	if p.norm != nil {
		spoken = p.norm.Convert(text)
	}
	if spoken == "" {
		p.log.Debug("unit has nothing to speak", slog.String("text", logging.SafeText(text, 60)))
		return
	}

	start := time.Now()
	audioBytes, outcome, err := p.synthesize(r.ctx, spoken)
	switch outcome {
	case OutcomeDropped:
		if r.ctx.Err() != nil {
			return
		}
		p.drop(r, text, err)
	case OutcomeSynthesized:
		chunk := frames.AudioChunk{Index: r.next, Audio: audioBytes, Text: text}
		if d, derr := audio.Duration(audioBytes); derr == nil {
			chunk.Duration = d
		}
		r.next++
		r.ready.push(chunk)
		tags := map[string]string{"component": "tts", "provider": p.synth.Name()}
		p.obs.RecordEvent(metrics.Since(metrics.EventTTSUnitReady, start, tags))
		r.firstAudio.Do(func() {
			p.obs.RecordEvent(metrics.Since(metrics.EventTTSFirstAudio, r.started, tags))
		})
		p.log.Debug("unit synthesized",
			slog.Int(frames.MetaIndex, chunk.Index),
			slog.Int("bytes", len(audioBytes)),
			slog.Duration("latency", time.Since(start)),
			slog.String("text", logging.SafeText(text, 60)))
	}
}

func (p *Pipeline) synthesize(ctx context.Context, text string) ([]byte, Outcome, error) {
	if p.breaker != nil && !p.breaker.Allow() {
		return nil, OutcomeDropped, errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonTTSCircuitOpen)
	}
	var out []byte
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		b, err := p.synth.Synthesize(ctx, text)
		if err != nil {
			return err
		}
		if len(b) == 0 {
			return errorsx.New(errorsx.ReasonTTSEmptyAudio, "synthesizer returned no audio")
		}
		out = b
		return nil
	})
	if err != nil {
		if p.breaker != nil {
			p.breaker.OnError(err)
		}
		if resilience.IsRateLimit(err) {
			return nil, OutcomeDropped, errorsx.Wrap(err, errorsx.ReasonTTSRateLimit)
		}
		return nil, OutcomeDropped, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	if p.breaker != nil {
		p.breaker.OnSuccess()
	}
	return out, OutcomeSynthesized, nil
}

func (p *Pipeline) drop(r *run, text string, err error) {
	r.dropped.Add(1)
	reason := errorsx.Reason(err)
	attrs := []any{
		slog.String("reason_code", string(reason)),
		slog.String("text", logging.SafeText(text, 60)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	p.log.Warn("unit dropped", attrs...)
	p.obs.RecordEvent(metrics.Count(metrics.EventTTSUnitDropped, map[string]string{
		"component":       "tts",
		"provider":        p.synth.Name(),
		frames.MetaReason: string(reason),
	}))
	if p.onDrop != nil {
		p.onDrop(Drop{Text: text, Reason: reason, Err: err})
	}
}

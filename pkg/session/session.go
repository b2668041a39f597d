// Package session runs one voice conversation: audio in, segmented speech,
// transcript, routed answer, ordered synthesized audio out.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/tutorvoice/pkg/adapters/stt"
	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/aggregators"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/metrics"
	"github.com/harunnryd/tutorvoice/pkg/synthesis"
	"github.com/harunnryd/tutorvoice/pkg/tutor"
	"github.com/harunnryd/tutorvoice/pkg/vad"
)

const (
	defaultPreviewRunes = 50
	readyPollTimeout    = 10 * time.Millisecond
)

// Conn is the client side of a session. Implementations must allow
// concurrent calls.
type Conn interface {
	WriteJSON(v any) error
	WriteBinary(data []byte) error
}

type Config struct {
	ID         string
	VAD        vad.Config
	Classifier vad.Classifier
	Buffer     aggregators.SentenceBufferConfig
	// PreviewRunes bounds the text sent with each audio chunk.
	PreviewRunes int
}

type Deps struct {
	Transcriber  stt.Transcriber
	Orchestrator *tutor.Orchestrator
	Synthesizer  tts.Synthesizer
	// SynthesisOptions are applied to the session's pipeline.
	SynthesisOptions []synthesis.Option
	Observer         metrics.Observer
	Logger           *slog.Logger
}

type Session struct {
	id      string
	cfg     Config
	conn    Conn
	seg     *vad.Segmenter
	stt     stt.Transcriber
	orch    *tutor.Orchestrator
	synth   *synthesis.Pipeline
	obs     metrics.Observer
	log     *slog.Logger
	opened  time.Time
	mu      sync.Mutex
	turnID  string
	turns   int
	closeMu sync.Once
}

func New(cfg Config, deps Deps, conn Conn) (*Session, error) {
	if conn == nil || deps.Transcriber == nil || deps.Orchestrator == nil || deps.Synthesizer == nil {
		return nil, errors.New("session: conn, transcriber, orchestrator and synthesizer are required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = vad.NewEnergyClassifier(vad.DefaultEnergyThreshold)
	}
	if cfg.PreviewRunes <= 0 {
		cfg.PreviewRunes = defaultPreviewRunes
	}
	obs := deps.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	log := logging.NewComponentLogger(base, "session").With(slog.String(frames.MetaSessionID, cfg.ID))

	seg, err := vad.NewSegmenter(cfg.VAD, cfg.Classifier)
	if err != nil {
		return nil, err
	}
	seg.SetLogger(log)

	s := &Session{
		id:     cfg.ID,
		cfg:    cfg,
		conn:   conn,
		seg:    seg,
		stt:    deps.Transcriber,
		orch:   deps.Orchestrator,
		obs:    obs,
		log:    log,
		opened: time.Now(),
	}
	opts := append([]synthesis.Option{
		synthesis.WithLogger(log),
		synthesis.WithObserver(obs),
	}, deps.SynthesisOptions...)
	opts = append(opts, synthesis.WithDropHandler(s.onDrop))
	s.synth = synthesis.New(deps.Synthesizer, opts...)

	obs.RecordEvent(metrics.Count(metrics.EventSessionOpened, s.tags()))
	log.Info("session opened")
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Turns returns the number of answered turns.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// HandleAudio feeds raw PCM from the client. Every completed speech segment
// is answered before HandleAudio returns; an error means the client is gone.
func (s *Session) HandleAudio(ctx context.Context, chunk []byte) error {
	seg, ok := s.seg.ProcessChunk(chunk)
	for ok {
		if err := s.runTurn(ctx, seg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		seg, ok = s.seg.ProcessChunk(nil)
	}
	return nil
}

// Close stops any synthesis in flight. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeMu.Do(func() {
		turns := s.Turns()
		err = s.synth.Stop()
		s.obs.RecordEvent(metrics.Since(metrics.EventSessionClosed, s.opened, s.tags()))
		s.log.Info("session closed", slog.Int("turns", turns), slog.Duration("duration", time.Since(s.opened)))
	})
	return err
}

type turn struct {
	id         string
	start      time.Time
	agent      string
	model      string
	text       strings.Builder
	firstAudio time.Duration
	sentAudio  bool
}

func (s *Session) runTurn(ctx context.Context, seg frames.SpeechSegment) error {
	t := &turn{id: uuid.NewString(), start: time.Now(), agent: "Assistant"}
	s.setTurn(t.id)
	tags := s.turnTags(t.id)
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventVADSegment,
		Time:  t.start,
		Value: float64(seg.Duration.Milliseconds()),
		Tags:  tags,
	})
	log := s.log.With(slog.String(frames.MetaTurnID, t.id))
	log.Info("speech segment detected", slog.Int("size_bytes", seg.Len()), slog.Duration("duration", seg.Duration))

	sttStart := time.Now()
	question, err := s.stt.Transcribe(ctx, seg)
	sttTook := time.Since(sttStart)
	s.obs.RecordEvent(metrics.Since(metrics.EventSTTDone, sttStart, tags))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("transcription failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonSTTTranscribe)))
		return nil
	}
	question = strings.TrimSpace(question)
	if question == "" {
		log.Info("no speech recognised", slog.Duration("stt", sttTook))
		return nil
	}
	log.Info("transcribed", slog.String("text", logging.SafeText(question, 120)), slog.Duration("stt", sttTook))

	if err := s.send(textMessage{Type: TypeUserText, Content: question}); err != nil {
		return err
	}
	if err := s.send(textMessage{Type: TypeAudioReset}); err != nil {
		return err
	}

	s.synth.Start(ctx)
	defer func() {
		if err := s.synth.Stop(); err != nil {
			log.Warn("synthesis stop", slog.String("error", err.Error()), slog.String("reason_code", string(errorsx.Reason(err))))
		}
	}()

	answerCtx, cancelAnswer := context.WithCancel(ctx)
	defer cancelAnswer()
	buf := aggregators.NewSentenceBuffer(s.cfg.Buffer)
	var tm tutor.TurnMetrics
	for ev := range s.orch.Stream(answerCtx, question) {
		switch ev.Kind {
		case tutor.EventRouting:
			t.agent, t.model = ev.Agent, ev.Model
		case tutor.EventRAG:
			if ev.Context != "" {
				if err := s.send(textMessage{Type: TypeRAGSources, Content: ev.Context, Source: ev.Source, Agent: t.agent, Model: t.model}); err != nil {
					return err
				}
			}
		case tutor.EventLLMChunk:
			t.text.WriteString(ev.Token)
			if err := s.send(textMessage{Type: TypeAITextChunk, Content: ev.Token, Agent: t.agent, Model: t.model}); err != nil {
				return err
			}
			for unit, ok := buf.Add(ev.Token); ok; unit, ok = buf.Add("") {
				s.synth.AddText(unit)
			}
			if err := s.drainReady(t); err != nil {
				return err
			}
		case tutor.EventMetrics:
			tm = ev.Metrics
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if rest, ok := buf.Flush(); ok {
		s.synth.AddText(rest)
	}
	recent := buf.History()
	for i := range recent {
		recent[i] = logging.SafeText(recent[i], 60)
	}
	log.Debug("answer segmented", slog.Any("recent_units", recent))
	s.synth.FinishGeneration()
	for chunk := range s.synth.IterAudio(ctx) {
		if err := s.sendChunk(t, chunk); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := s.send(textMessage{Type: TypeAIText, Content: t.text.String(), Agent: t.agent}); err != nil {
		return err
	}
	total := time.Since(t.start)
	latency := Latency{
		STT:     sttTook.Seconds(),
		Routing: tm.Routing.Seconds(),
		RAG:     tm.Retrieve.Seconds(),
		LLM:     tm.LLM.Seconds(),
		TTFA:    t.firstAudio.Seconds(),
		Total:   total.Seconds(),
		Model:   tm.Model,
	}
	if err := s.send(latencyMessage{Type: TypeLatencyMetrics, Data: latency}); err != nil {
		return err
	}
	s.obs.RecordEvent(metrics.Since(metrics.EventTurnCompleted, t.start, tags))
	s.mu.Lock()
	s.turns++
	s.mu.Unlock()
	log.Info("turn completed",
		slog.String("agent", t.agent),
		slog.String("model", t.model),
		slog.Duration("ttfa", t.firstAudio),
		slog.Duration("total", total),
		slog.Int("dropped_units", s.synth.Dropped()))
	return nil
}

// drainReady forwards every chunk that is already synthesized without
// blocking the token stream for long.
func (s *Session) drainReady(t *turn) error {
	for {
		chunk, ok := s.synth.GetAudio(readyPollTimeout)
		if !ok {
			return nil
		}
		if err := s.sendChunk(t, chunk); err != nil {
			return err
		}
	}
}

func (s *Session) sendChunk(t *turn, chunk frames.AudioChunk) error {
	meta := audioMeta{
		Type:       TypeAudioChunkMeta,
		Index:      chunk.Index,
		Text:       chunk.Preview(s.cfg.PreviewRunes),
		DurationMS: float64(chunk.Duration.Microseconds()) / 1000,
	}
	if err := s.send(meta); err != nil {
		return err
	}
	if err := s.conn.WriteBinary(chunk.Audio); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	if !t.sentAudio {
		t.sentAudio = true
		t.firstAudio = time.Since(t.start)
		s.log.Info("first audio sent", slog.String(frames.MetaTurnID, t.id), slog.Duration("ttfa", t.firstAudio))
	}
	return nil
}

func (s *Session) onDrop(d synthesis.Drop) {
	msg := audioDropped{
		Type:   TypeAudioDropped,
		Text:   frames.AudioChunk{Text: d.Text}.Preview(s.cfg.PreviewRunes),
		Reason: string(d.Reason),
	}
	s.mu.Lock()
	turnID := s.turnID
	s.mu.Unlock()
	s.log.Debug("reporting dropped unit", slog.String(frames.MetaTurnID, turnID), slog.String("reason_code", msg.Reason))
	if err := s.send(msg); err != nil {
		s.log.Debug("audio_dropped not delivered", slog.String("error", err.Error()))
	}
}

func (s *Session) send(v any) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func (s *Session) setTurn(id string) {
	s.mu.Lock()
	s.turnID = id
	s.mu.Unlock()
}

func (s *Session) tags() map[string]string {
	return map[string]string{frames.MetaSessionID: s.id}
}

func (s *Session) turnTags(turnID string) map[string]string {
	return map[string]string{frames.MetaSessionID: s.id, frames.MetaTurnID: turnID}
}

package tutor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/metrics"
)

// FallbackReply is spoken when the subject model cannot answer.
const FallbackReply = "Désolé, je ne peux pas répondre pour le moment."

type EventKind string

const (
	EventRouting  EventKind = "routing"
	EventRAG      EventKind = "rag"
	EventLLMChunk EventKind = "llm_chunk"
	EventMetrics  EventKind = "metrics"
)

// Event is one step of an answer. Fields are set according to Kind.
type Event struct {
	Kind    EventKind
	Subject Subject
	Agent   string
	Model   string
	Method  RouteMethod
	Context string
	Source  string
	Token   string
	Metrics TurnMetrics
}

// TurnMetrics are the stage timings of one answer.
type TurnMetrics struct {
	Routing    time.Duration
	Retrieve   time.Duration
	LLM        time.Duration
	FirstToken time.Duration
	Model      string
}

type Option func(*Orchestrator)

func WithProfiles(p map[Subject]Profile) Option {
	return func(o *Orchestrator) {
		if len(p) > 0 {
			o.profiles = p
		}
	}
}

func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.retriever = r
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTemperature sets the sampling temperature of answers.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// Orchestrator answers one question: route, retrieve, then stream the subject
// model's reply.
type Orchestrator struct {
	gen         llm.Generator
	router      *Router
	retriever   Retriever
	profiles    map[Subject]Profile
	obs         metrics.Observer
	log         *slog.Logger
	temperature float64
}

func NewOrchestrator(gen llm.Generator, router *Router, opts ...Option) *Orchestrator {
	if router == nil {
		router = NewRouter(gen, DefaultProfiles()[SubjectGeneral].Model)
	}
	o := &Orchestrator{
		gen:       gen,
		router:    router,
		retriever: NoopRetriever{},
		profiles:  DefaultProfiles(),
		obs:       metrics.NoopObserver{},
		log:       logging.NewComponentLogger(slog.Default(), "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Profile returns the profile used for s, falling back to GENERAL.
func (o *Orchestrator) Profile(s Subject) Profile {
	if p, ok := o.profiles[s]; ok {
		return p
	}
	return o.profiles[SubjectGeneral]
}

// Stream answers question. The channel emits routing, rag, zero or more
// llm_chunk and a final metrics event, then closes. Cancelling ctx closes it
// early.
func (o *Orchestrator) Stream(ctx context.Context, question string) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		o.run(ctx, question, out)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, question string, out chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	var tm TurnMetrics

	start := time.Now()
	subject, method := o.router.Route(ctx, question)
	tm.Routing = time.Since(start)
	profile := o.Profile(subject)
	tm.Model = profile.Model
	tags := map[string]string{frames.MetaSubject: string(subject), frames.MetaModel: profile.Model, "method": string(method)}
	o.obs.RecordEvent(metrics.Since(metrics.EventRouteSelected, start, tags))
	o.log.Info("question routed",
		slog.String("subject", string(subject)),
		slog.String("method", string(method)),
		slog.String("model", profile.Model),
		slog.Duration("took", tm.Routing))
	if !emit(Event{Kind: EventRouting, Subject: subject, Agent: profile.Agent, Model: profile.Model, Method: method}) {
		return
	}

	start = time.Now()
	contextText, source := o.retrieve(ctx, subject, question)
	tm.Retrieve = time.Since(start)
	o.obs.RecordEvent(metrics.Since(metrics.EventRetrieveDone, start, map[string]string{frames.MetaSubject: string(subject)}))
	if !emit(Event{Kind: EventRAG, Subject: subject, Agent: profile.Agent, Model: profile.Model, Context: contextText, Source: source}) {
		return
	}

	prompt := question
	if contextText != "" {
		prompt = "Contexte du cours :\n" + contextText + "\n\nQuestion : " + question
	}
	req := llm.NewRequest(profile.Model, profile.Prompt, prompt)
	req.Temperature = o.temperature

	start = time.Now()
	tokens, err := o.gen.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.log.Warn("answer generation failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.Reason(err))))
		if !emit(Event{Kind: EventLLMChunk, Subject: subject, Agent: profile.Agent, Model: profile.Model, Token: FallbackReply}) {
			return
		}
	} else {
		first := true
	loop:
		for {
			select {
			case <-ctx.Done():
				return
			case tok, ok := <-tokens:
				if !ok {
					break loop
				}
				if tok == "" {
					continue
				}
				if first {
					first = false
					tm.FirstToken = time.Since(start)
					o.obs.RecordEvent(metrics.Since(metrics.EventLLMFirstToken, start, tags))
				}
				if !emit(Event{Kind: EventLLMChunk, Subject: subject, Agent: profile.Agent, Model: profile.Model, Token: tok}) {
					return
				}
			}
		}
	}
	tm.LLM = time.Since(start)
	emit(Event{Kind: EventMetrics, Subject: subject, Agent: profile.Agent, Model: profile.Model, Metrics: tm})
}

func (o *Orchestrator) retrieve(ctx context.Context, subject Subject, question string) (string, string) {
	if subject == SubjectGeneral {
		return "", ""
	}
	passages, err := o.retriever.Retrieve(ctx, subject, question)
	if err != nil {
		o.log.Warn("retrieval failed",
			slog.String("subject", string(subject)),
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonRetrieve)))
		return "", ""
	}
	var texts, sources []string
	for _, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		texts = append(texts, p.Text)
		src := p.Source
		if src == "" {
			src = "Inconnu"
		}
		sources = append(sources, src)
	}
	return strings.Join(texts, "\n\n"), strings.Join(sources, ", ")
}

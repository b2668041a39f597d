package tutor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/logging"
)

// RouteMethod tells how a subject was chosen.
type RouteMethod string

const (
	RouteKeyword RouteMethod = "keyword"
	RouteLLM     RouteMethod = "llm"
	RouteDefault RouteMethod = "default"
)

var defaultKeywords = map[Subject][]string{
	SubjectMath: {
		"équation", "equation", "racine", "polynôme", "polynome",
		"calcul", "algèbre", "algebra", "math", "x²", "x^2",
		"dérivée", "intégrale", "fraction", "nombre",
	},
	SubjectPhysics: {
		"gravité", "gravity", "force", "newton", "mouvement",
		"énergie", "energy", "vitesse", "accélération", "physique",
		"masse", "poids", "électricité", "magnétisme",
	},
	SubjectEnglish: {
		"english", "anglais", "grammar", "grammaire", "vocabulary",
		"tense", "present", "past", "future", "verb", "conjugation",
		"conjugaison", "phrase", "idiom", "expression",
	},
}

const (
	classifierSystem = "Tu es un classificateur strict. Réponds par un seul mot."
	classifierPrompt = `Tu es un routeur intelligent. Analyse la demande suivante et classe-la dans une des catégories :
- MATH (si ça parle d'équations, nombres, algèbre)
- PHYSICS (si ça parle de forces, gravité, mouvement, énergie)
- ENGLISH (si ça parle d'anglais, grammaire anglaise, vocabulaire anglais)
- GENERAL (si c'est une conversation normale ou autre)

Réponds UNIQUEMENT par un seul mot : MATH, PHYSICS, ENGLISH ou GENERAL.

Demande : "`
)

type RouterOption func(*Router)

// WithKeywords replaces the keyword list of one subject.
func WithKeywords(s Subject, words []string) RouterOption {
	return func(r *Router) { r.keywords[s] = lowerAll(words) }
}

// WithRouteTimeout bounds the LLM classification call.
func WithRouteTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// Router picks a subject for a question: keywords first (MATH, PHYSICS,
// ENGLISH in that order), then an optional one-word LLM classification.
type Router struct {
	gen      llm.Generator
	model    string
	keywords map[Subject][]string
	timeout  time.Duration
	log      *slog.Logger
}

// NewRouter builds a router. A nil generator disables the LLM fallback.
func NewRouter(gen llm.Generator, model string, opts ...RouterOption) *Router {
	r := &Router{
		gen:      gen,
		model:    model,
		keywords: make(map[Subject][]string, len(defaultKeywords)),
		timeout:  10 * time.Second,
		log:      logging.NewComponentLogger(slog.Default(), "router"),
	}
	for s, words := range defaultKeywords {
		r.keywords[s] = words
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Route(ctx context.Context, text string) (Subject, RouteMethod) {
	if s, ok := r.matchKeywords(text); ok {
		r.log.Debug("route keyword match", slog.String("subject", string(s)))
		return s, RouteKeyword
	}
	if r.gen == nil {
		return SubjectGeneral, RouteDefault
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req := llm.NewRequest(r.model, classifierSystem, classifierPrompt+text+`"`)
	answer, err := llm.Generate(ctx, r.gen, req)
	if err != nil {
		r.log.Warn("route classification failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonLLMRoute)))
		return SubjectGeneral, RouteDefault
	}
	return classify(answer), RouteLLM
}

func (r *Router) matchKeywords(text string) (Subject, bool) {
	lower := strings.ToLower(text)
	for _, s := range []Subject{SubjectMath, SubjectPhysics, SubjectEnglish} {
		for _, k := range r.keywords[s] {
			if k != "" && strings.Contains(lower, k) {
				return s, true
			}
		}
	}
	return "", false
}

// classify reads a free-form classifier answer, checking labels in priority
// order so "MATH or PHYSICS" resolves to MATH.
func classify(answer string) Subject {
	upper := strings.ToUpper(strings.TrimSpace(answer))
	for _, s := range []Subject{SubjectMath, SubjectPhysics, SubjectEnglish} {
		if strings.Contains(upper, string(s)) {
			return s
		}
	}
	return SubjectGeneral
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, strings.ToLower(strings.TrimSpace(w)))
	}
	return out
}

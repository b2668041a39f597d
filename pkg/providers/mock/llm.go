package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/harunnryd/tutorvoice/pkg/llm"
)

type LLMConfig struct {
	// StreamChunks is the reply streamed for every request.
	StreamChunks []string
	// ResponseText is split on spaces into chunks when StreamChunks is empty.
	ResponseText string
	// Reply, when set, computes the chunks from the request instead.
	Reply func(req llm.Request) []string
	Err   error
}

// Generator is a deterministic llm.Generator that remembers its requests.
type Generator struct {
	cfg LLMConfig

	mu       sync.Mutex
	requests []llm.Request
}

func NewGenerator(cfg LLMConfig) *Generator {
	if cfg.ResponseText == "" && len(cfg.StreamChunks) == 0 && cfg.Reply == nil {
		cfg.ResponseText = "Réponse de test."
	}
	return &Generator{cfg: cfg}
}

func (g *Generator) Name() string { return "mock_llm" }

func (g *Generator) Stream(ctx context.Context, req llm.Request) (<-chan string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.cfg.Err != nil {
		return nil, g.cfg.Err
	}
	chunks := g.chunks(req)
	out := make(chan string)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case out <- c:
			}
		}
	}()
	return out, nil
}

// Requests returns every request received so far.
func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

func (g *Generator) chunks(req llm.Request) []string {
	switch {
	case g.cfg.Reply != nil:
		return g.cfg.Reply(req)
	case len(g.cfg.StreamChunks) > 0:
		return g.cfg.StreamChunks
	}
	words := strings.SplitAfter(g.cfg.ResponseText, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

var _ llm.Generator = (*Generator)(nil)

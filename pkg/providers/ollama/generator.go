// Package ollama streams chat replies from a local Ollama server through its
// native /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/logging"
)

const DefaultBaseURL = "http://localhost:11434"

type Config struct {
	BaseURL string
	Model   string
	// KeepAlive is forwarded verbatim ("5m", "-1") to keep models loaded.
	KeepAlive string
	Timeout   time.Duration
}

type Generator struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

func New(cfg Config) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return &Generator{
		cfg:    cfg,
		client: client,
		log:    logging.NewComponentLogger(slog.Default(), "ollama"),
	}
}

func (g *Generator) Name() string { return "ollama" }

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []llm.Message  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (g *Generator) Stream(ctx context.Context, in llm.Request) (<-chan string, error) {
	model := in.Model
	if model == "" {
		model = g.cfg.Model
	}
	payload := chatRequest{Model: model, Messages: in.Messages, Stream: true, KeepAlive: g.cfg.KeepAlive}
	if in.Temperature > 0 || in.MaxTokens > 0 {
		payload.Options = map[string]any{}
		if in.Temperature > 0 {
			payload.Options["temperature"] = in.Temperature
		}
		if in.MaxTokens > 0 {
			payload.Options["num_predict"] = in.MaxTokens
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errorsx.Errorf(errorsx.ReasonLLMGenerate, "ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := make(chan string, 64)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var line chatLine
			if err := json.Unmarshal(raw, &line); err != nil {
				continue
			}
			if line.Error != "" {
				g.log.Warn("ollama stream error",
					slog.String("reason_code", string(errorsx.ReasonLLMStream)),
					slog.String("model", model),
					slog.String("error", line.Error))
				return
			}
			if line.Message.Content != "" {
				select {
				case <-ctx.Done():
					return
				case out <- line.Message.Content:
				}
			}
			if line.Done {
				return
			}
		}
	}()
	return out, nil
}

var _ llm.Generator = (*Generator)(nil)

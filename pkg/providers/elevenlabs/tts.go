// Package elevenlabs synthesizes speech through the ElevenLabs stream-input
// websocket, one connection per speakable unit.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/audio"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/resilience"
)

const DefaultBaseURL = "wss://api.elevenlabs.io"

type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	// OutputFormat is an ElevenLabs format name. pcm_* output is wrapped in a
	// WAV container; anything else is returned as sent.
	OutputFormat string
	BaseURL      string
	Stability    float64
	Similarity   float64
	Timeout      time.Duration
}

type Synthesizer struct {
	cfg        Config
	sampleRate int
	dialer     websocket.Dialer
	log        *slog.Logger
}

func New(cfg Config) (*Synthesizer, error) {
	if cfg.APIKey == "" || cfg.VoiceID == "" {
		return nil, errors.New("elevenlabs: api key and voice id are required")
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	s := &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		log:    logging.NewComponentLogger(slog.Default(), "elevenlabs"),
	}
	if rate, ok := strings.CutPrefix(cfg.OutputFormat, "pcm_"); ok {
		n, err := strconv.Atoi(rate)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("elevenlabs: invalid output format %q", cfg.OutputFormat)
		}
		s.sampleRate = n
	}
	return s, nil
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

type inbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(ctx, s.streamURL(), http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSRateLimit)
		}
		return nil, errorsx.Wrap(fmt.Errorf("elevenlabs dial: %w", err), errorsx.ReasonTTSSynthesize)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.Similarity,
			},
		},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("elevenlabs send: %w", err), errorsx.ReasonTTSSynthesize)
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return nil, errorsx.Wrap(fmt.Errorf("elevenlabs read: %w", err), errorsx.ReasonTTSSynthesize)
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("elevenlabs non-json message", slog.Int("bytes", len(data)))
			continue
		}
		if msg.Error != "" {
			return nil, errorsx.Errorf(errorsx.ReasonTTSSynthesize, "elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("elevenlabs audio decode: %w", err), errorsx.ReasonTTSSynthesize)
			}
			pcm = append(pcm, raw...)
		}
		if msg.IsFinal {
			break
		}
	}
	if len(pcm) == 0 {
		return nil, errorsx.New(errorsx.ReasonTTSEmptyAudio, "elevenlabs returned no audio")
	}
	if s.sampleRate > 0 {
		if len(pcm)%2 != 0 {
			pcm = pcm[:len(pcm)-1]
		}
		return audio.EncodePCM16(pcm, s.sampleRate)
	}
	return pcm, nil
}

func (s *Synthesizer) streamURL() string {
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	return s.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input?" + q.Encode()
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

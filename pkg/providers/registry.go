// Package providers maps vendor names from configuration to concrete
// transcribers, synthesizers and generators.
package providers

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/adapters/stt"
	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/config"
	"github.com/harunnryd/tutorvoice/pkg/configutil"
	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/providers/deepgram"
	"github.com/harunnryd/tutorvoice/pkg/providers/elevenlabs"
	"github.com/harunnryd/tutorvoice/pkg/providers/mock"
	"github.com/harunnryd/tutorvoice/pkg/providers/ollama"
	"github.com/harunnryd/tutorvoice/pkg/providers/openai"
	"github.com/harunnryd/tutorvoice/pkg/providers/piper"
)

type TranscriberFactory func(settings map[string]any) (stt.Transcriber, error)
type SynthesizerFactory func(settings map[string]any) (tts.Synthesizer, error)
type GeneratorFactory func(settings map[string]any) (llm.Generator, error)

type Registry struct {
	stt map[string]TranscriberFactory
	tts map[string]SynthesizerFactory
	llm map[string]GeneratorFactory
}

func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]TranscriberFactory),
		tts: make(map[string]SynthesizerFactory),
		llm: make(map[string]GeneratorFactory),
	}
}

func (r *Registry) RegisterTranscriber(name string, factory TranscriberFactory) {
	r.stt[key(name)] = factory
}

func (r *Registry) RegisterSynthesizer(name string, factory SynthesizerFactory) {
	r.tts[key(name)] = factory
}

func (r *Registry) RegisterGenerator(name string, factory GeneratorFactory) {
	r.llm[key(name)] = factory
}

func (r *Registry) Transcriber(cfg config.VendorConfig) (stt.Transcriber, error) {
	fn := r.stt[key(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s (have %s)", cfg.Provider, names(r.stt))
	}
	return fn(cfg.Settings)
}

func (r *Registry) Synthesizer(cfg config.VendorConfig) (tts.Synthesizer, error) {
	fn := r.tts[key(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s (have %s)", cfg.Provider, names(r.tts))
	}
	return fn(cfg.Settings)
}

func (r *Registry) Generator(cfg config.VendorConfig) (llm.Generator, error) {
	fn := r.llm[key(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s (have %s)", cfg.Provider, names(r.llm))
	}
	return fn(cfg.Settings)
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func names[F any](m map[string]F) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

type deepgramSettings struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Language          string        `mapstructure:"language"`
	UtteranceEndMS    int           `mapstructure:"utterance_end_ms"`
	TrailingSilenceMS int           `mapstructure:"trailing_silence_ms"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type piperSettings struct {
	Binary  string `mapstructure:"binary"`
	Model   string `mapstructure:"model"`
	TempDir string `mapstructure:"temp_dir"`
	Speaker int    `mapstructure:"speaker"`
}

type elevenlabsSettings struct {
	APIKey       string        `mapstructure:"api_key"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	BaseURL      string        `mapstructure:"base_url"`
	Stability    float64       `mapstructure:"stability"`
	Similarity   float64       `mapstructure:"similarity_boost"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ollamaSettings struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	KeepAlive string        `mapstructure:"keep_alive"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type openAISettings struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type mockSTTSettings struct {
	Transcripts []string `mapstructure:"transcripts"`
}

type mockTTSSettings struct {
	SampleRate int           `mapstructure:"sample_rate"`
	PerRune    time.Duration `mapstructure:"per_rune"`
	Delay      time.Duration `mapstructure:"delay"`
}

type mockLLMSettings struct {
	ResponseText string   `mapstructure:"response_text"`
	StreamChunks []string `mapstructure:"stream_chunks"`
}

// NewDefaultRegistry registers every built-in vendor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterTranscriber("deepgram", func(in map[string]any) (stt.Transcriber, error) {
		var s deepgramSettings
		if err := decode("vendors.stt.settings", in, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "utterance_end_ms", "trailing_silence_ms", "timeout"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:            s.APIKey,
			Model:             s.Model,
			Language:          s.Language,
			UtteranceEndMS:    s.UtteranceEndMS,
			TrailingSilenceMS: s.TrailingSilenceMS,
			Timeout:           s.Timeout,
		})
	})
	r.RegisterTranscriber("mock", func(in map[string]any) (stt.Transcriber, error) {
		var s mockSTTSettings
		if err := decode("vendors.stt.settings", in, configutil.Schema{Optional: []string{"transcripts"}}, &s); err != nil {
			return nil, err
		}
		return mock.NewTranscriber(mock.STTConfig{Transcripts: s.Transcripts}), nil
	})

	r.RegisterSynthesizer("piper", func(in map[string]any) (tts.Synthesizer, error) {
		var s piperSettings
		if err := decode("vendors.tts.settings", in, configutil.Schema{
			Optional: []string{"binary", "model", "temp_dir", "speaker"},
		}, &s); err != nil {
			return nil, err
		}
		return piper.New(piper.Config{
			Binary:  s.Binary,
			Model:   configutil.StringOr(s.Model, piper.DefaultModel),
			TempDir: s.TempDir,
			Speaker: s.Speaker,
		}), nil
	})
	r.RegisterSynthesizer("elevenlabs", func(in map[string]any) (tts.Synthesizer, error) {
		var s elevenlabsSettings
		if err := decode("vendors.tts.settings", in, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"model_id", "output_format", "base_url", "stability", "similarity_boost", "timeout"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       s.APIKey,
			VoiceID:      s.VoiceID,
			ModelID:      configutil.StringOr(s.ModelID, "eleven_flash_v2_5"),
			OutputFormat: s.OutputFormat,
			BaseURL:      s.BaseURL,
			Stability:    s.Stability,
			Similarity:   s.Similarity,
			Timeout:      s.Timeout,
		})
	})
	r.RegisterSynthesizer("mock", func(in map[string]any) (tts.Synthesizer, error) {
		var s mockTTSSettings
		if err := decode("vendors.tts.settings", in, configutil.Schema{
			Optional: []string{"sample_rate", "per_rune", "delay"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewSynthesizer(mock.TTSConfig{SampleRate: s.SampleRate, PerRune: s.PerRune, Delay: s.Delay}), nil
	})

	r.RegisterGenerator("ollama", func(in map[string]any) (llm.Generator, error) {
		var s ollamaSettings
		if err := decode("vendors.llm.settings", in, configutil.Schema{
			Optional: []string{"base_url", "model", "keep_alive", "timeout"},
		}, &s); err != nil {
			return nil, err
		}
		return ollama.New(ollama.Config{BaseURL: s.BaseURL, Model: s.Model, KeepAlive: s.KeepAlive, Timeout: s.Timeout}), nil
	})
	r.RegisterGenerator("openai", func(in map[string]any) (llm.Generator, error) {
		var s openAISettings
		if err := decode("vendors.llm.settings", in, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url", "timeout"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		return openai.New(openai.Config{APIKey: s.APIKey, Model: s.Model, BaseURL: s.BaseURL, Timeout: s.Timeout}), nil
	})
	r.RegisterGenerator("mock", func(in map[string]any) (llm.Generator, error) {
		var s mockLLMSettings
		if err := decode("vendors.llm.settings", in, configutil.Schema{
			Optional: []string{"response_text", "stream_chunks"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewGenerator(mock.LLMConfig{ResponseText: s.ResponseText, StreamChunks: s.StreamChunks}), nil
	})
	return r
}

func decode(path string, input map[string]any, schema configutil.Schema, out any) error {
	if err := configutil.Decode(input, schema, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

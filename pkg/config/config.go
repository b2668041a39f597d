// Package config loads the server configuration from a YAML file, TUTORVOICE_*
// environment variables and built-in defaults, in that order of precedence
// (environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/configutil"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/spf13/viper"
)

const EnvPrefix = "TUTORVOICE"

type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Audio       AudioConfig      `mapstructure:"audio"`
	Buffer      BufferConfig     `mapstructure:"buffer"`
	Synthesis   SynthesisConfig  `mapstructure:"synthesis"`
	Generation  GenerationConfig `mapstructure:"generation"`
	Vendors     VendorsConfig    `mapstructure:"vendors"`
	Subjects    SubjectsConfig   `mapstructure:"subjects"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Privacy     PrivacyConfig    `mapstructure:"privacy"`
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
}

type ServerConfig struct {
	Addr                string   `mapstructure:"addr"`
	StaticDir           string   `mapstructure:"static_dir"`
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	ReadHeaderTimeoutMS int      `mapstructure:"read_header_timeout_ms"`
	DrainTimeoutMS      int      `mapstructure:"drain_timeout_ms"`
	MaxMessageBytes     int64    `mapstructure:"max_message_bytes"`
}

// AudioConfig drives the voice activity segmenter.
type AudioConfig struct {
	SampleRate      int     `mapstructure:"sample_rate"`
	FrameMS         int     `mapstructure:"frame_ms"`
	PaddingMS       int     `mapstructure:"padding_ms"`
	Ratio           float64 `mapstructure:"ratio"`
	EnergyThreshold float64 `mapstructure:"energy_threshold"`
}

type BufferConfig struct {
	MinChars      int `mapstructure:"min_chars"`
	MaxChars      int `mapstructure:"max_chars"`
	FirstMinChars int `mapstructure:"first_min_chars"`
}

type SynthesisConfig struct {
	PollIntervalMS    int               `mapstructure:"poll_interval_ms"`
	JoinTimeoutMS     int               `mapstructure:"join_timeout_ms"`
	Retries           int               `mapstructure:"retries"`
	RetryBackoffMS    int               `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int               `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int               `mapstructure:"breaker_cooldown_ms"`
	MathPauses        bool              `mapstructure:"math_pauses"`
	Replacements      map[string]string `mapstructure:"replacements"`
}

// GenerationConfig guards the LLM vendor independently of synthesis.
type GenerationConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	RetryBackoffMS    int     `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int     `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int     `mapstructure:"breaker_cooldown_ms"`
	Temperature       float64 `mapstructure:"temperature"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

// SubjectsConfig overrides the per-subject model and system prompt. Keys are
// subject names (math, physics, english, general).
type SubjectsConfig struct {
	RouterModel string            `mapstructure:"router_model"`
	LLMFallback bool              `mapstructure:"llm_fallback"`
	Models      map[string]string `mapstructure:"models"`
	Prompts     map[string]string `mapstructure:"prompts"`
}

type MetricsConfig struct {
	Prometheus bool   `mapstructure:"prometheus"`
	EventsFile string `mapstructure:"events_file"`
	LogEvents  bool   `mapstructure:"log_events"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func (s SynthesisConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

func (s SynthesisConfig) JoinTimeout() time.Duration {
	return time.Duration(s.JoinTimeoutMS) * time.Millisecond
}

func (s SynthesisConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMS) * time.Millisecond
}

func (s SynthesisConfig) BreakerCooldown() time.Duration {
	return time.Duration(s.BreakerCooldownMS) * time.Millisecond
}

func (g GenerationConfig) RetryBackoff() time.Duration {
	return time.Duration(g.RetryBackoffMS) * time.Millisecond
}

func (g GenerationConfig) BreakerCooldown() time.Duration {
	return time.Duration(g.BreakerCooldownMS) * time.Millisecond
}

func (s ServerConfig) DrainTimeout() time.Duration {
	return time.Duration(s.DrainTimeoutMS) * time.Millisecond
}

func (s ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutMS) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8001")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_header_timeout_ms", 10000)
	v.SetDefault("server.drain_timeout_ms", 5000)
	v.SetDefault("server.max_message_bytes", 1<<20)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_ms", 30)
	v.SetDefault("audio.padding_ms", 300)
	v.SetDefault("audio.ratio", 0.9)
	v.SetDefault("audio.energy_threshold", 500.0)
	v.SetDefault("buffer.min_chars", 5)
	v.SetDefault("buffer.max_chars", 50)
	v.SetDefault("buffer.first_min_chars", 5)
	v.SetDefault("synthesis.poll_interval_ms", 500)
	v.SetDefault("synthesis.join_timeout_ms", 2000)
	v.SetDefault("synthesis.retries", 1)
	v.SetDefault("synthesis.retry_backoff_ms", 200)
	v.SetDefault("synthesis.breaker_threshold", 3)
	v.SetDefault("synthesis.breaker_cooldown_ms", 30000)
	v.SetDefault("synthesis.math_pauses", true)
	v.SetDefault("generation.max_attempts", 2)
	v.SetDefault("generation.retry_backoff_ms", 250)
	v.SetDefault("generation.breaker_threshold", 5)
	v.SetDefault("generation.breaker_cooldown_ms", 20000)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("vendors.stt.provider", "deepgram")
	v.SetDefault("vendors.tts.provider", "piper")
	v.SetDefault("vendors.llm.provider", "ollama")
	v.SetDefault("subjects.router_model", "qwen2.5:1.5b")
	v.SetDefault("subjects.llm_fallback", true)
	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("metrics.events_file", "")
	v.SetDefault("metrics.log_events", false)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfig)
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfig)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.FrameMS <= 0 {
		errs = append(errs, errors.New("audio.frame_ms must be positive"))
	}
	if c.Audio.PaddingMS < c.Audio.FrameMS {
		errs = append(errs, errors.New("audio.padding_ms must be at least audio.frame_ms"))
	}
	if c.Audio.Ratio <= 0 || c.Audio.Ratio >= 1 {
		errs = append(errs, errors.New("audio.ratio must be in (0, 1)"))
	}
	if c.Buffer.MinChars <= 0 || c.Buffer.MaxChars < c.Buffer.MinChars {
		errs = append(errs, errors.New("buffer.max_chars must be >= buffer.min_chars > 0"))
	}
	if c.Synthesis.Retries < 0 {
		errs = append(errs, errors.New("synthesis.retries must not be negative"))
	}
	if c.Generation.MaxAttempts < 1 {
		errs = append(errs, errors.New("generation.max_attempts must be at least 1"))
	}
	if c.Generation.BreakerThreshold < 1 {
		errs = append(errs, errors.New("generation.breaker_threshold must be at least 1"))
	}
	for _, vendor := range []struct {
		path string
		cfg  VendorConfig
	}{
		{"vendors.stt.provider", c.Vendors.STT},
		{"vendors.tts.provider", c.Vendors.TTS},
		{"vendors.llm.provider", c.Vendors.LLM},
	} {
		if err := configutil.RequireString(vendor.cfg.Provider, vendor.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = configutil.ExpandEnv(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = configutil.ExpandEnv(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = configutil.ExpandEnv(cfg.Vendors.LLM.Settings)
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(v.MapIndex(key).String())))
			}
		}
	}
}

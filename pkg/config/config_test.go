package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/tutorvoice/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8001" || cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameMS != 30 || cfg.Audio.PaddingMS != 300 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Buffer.MinChars != 5 || cfg.Buffer.MaxChars != 50 || cfg.Buffer.FirstMinChars != 5 {
		t.Fatalf("unexpected buffer defaults %+v", cfg.Buffer)
	}
	if cfg.Synthesis.PollInterval().Milliseconds() != 500 || cfg.Synthesis.JoinTimeout().Seconds() != 2 {
		t.Fatalf("unexpected synthesis defaults %+v", cfg.Synthesis)
	}
	if !cfg.Synthesis.MathPauses || !cfg.Privacy.RedactPII {
		t.Fatalf("expected math pauses and redaction on by default")
	}
	if cfg.Generation.MaxAttempts != 2 || cfg.Generation.BreakerThreshold != 5 || cfg.Generation.BreakerCooldown().Seconds() != 20 {
		t.Fatalf("unexpected generation defaults %+v", cfg.Generation)
	}
	if cfg.Vendors.TTS.Provider != "piper" || cfg.Vendors.LLM.Provider != "ollama" {
		t.Fatalf("unexpected vendors %+v", cfg.Vendors)
	}
}

func TestLoadFileAndExpandEnv(t *testing.T) {
	t.Setenv("DG_KEY", "dg-secret")
	path := writeConfig(t, `
server:
  addr: ":9000"
  static_dir: "${HOME_STATIC}/web"
audio:
  energy_threshold: 800
vendors:
  stt:
    provider: deepgram
    settings:
      api_key: "${DG_KEY}"
      model: nova-2
  tts:
    provider: elevenlabs
  llm:
    provider: openai
subjects:
  models:
    math: "qwen2.5:7b"
log_format: json
`)
	t.Setenv("HOME_STATIC", "/srv")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.StaticDir != "/srv/web" {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}
	if cfg.Audio.EnergyThreshold != 800 {
		t.Fatalf("unexpected threshold %v", cfg.Audio.EnergyThreshold)
	}
	if cfg.Vendors.STT.Settings["api_key"] != "dg-secret" {
		t.Fatalf("settings not expanded: %v", cfg.Vendors.STT.Settings)
	}
	if cfg.Subjects.Models["math"] != "qwen2.5:7b" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected %+v", cfg.Subjects)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TUTORVOICE_SERVER_ADDR", ":7000")
	t.Setenv("TUTORVOICE_LOG_LEVEL", "debug")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7000" || cfg.LogLevel != "debug" {
		t.Fatalf("env overrides not applied: addr=%q level=%q", cfg.Server.Addr, cfg.LogLevel)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
audio:
  frame_ms: 30
  padding_ms: 10
buffer:
  min_chars: 10
  max_chars: 5
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config reason, got %v", err)
	}
}

func TestGenerationBreakerIsIndependent(t *testing.T) {
	path := writeConfig(t, `
synthesis:
  breaker_threshold: 2
  breaker_cooldown_ms: 1000
generation:
  breaker_threshold: 7
  breaker_cooldown_ms: 45000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Synthesis.BreakerThreshold != 2 || cfg.Synthesis.BreakerCooldown().Seconds() != 1 {
		t.Fatalf("unexpected synthesis breaker %+v", cfg.Synthesis)
	}
	if cfg.Generation.BreakerThreshold != 7 || cfg.Generation.BreakerCooldown().Seconds() != 45 {
		t.Fatalf("unexpected generation breaker %+v", cfg.Generation)
	}

	path = writeConfig(t, `
generation:
  max_attempts: 0
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for zero max_attempts")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

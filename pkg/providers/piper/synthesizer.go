// Package piper runs the local piper binary to synthesize French speech.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/harunnryd/tutorvoice/pkg/adapters/tts"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/logging"
)

const DefaultModel = "fr_FR-upmc-medium.onnx"

type Config struct {
	Binary  string
	Model   string
	TempDir string
	// Speaker selects a voice in multi-speaker models; negative leaves it unset.
	Speaker int
}

type Synthesizer struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Speaker == 0 {
		cfg.Speaker = -1
	}
	return &Synthesizer{cfg: cfg, log: logging.NewComponentLogger(slog.Default(), "piper")}
}

func (s *Synthesizer) Name() string { return "piper" }

// Synthesize writes text to piper's stdin and returns the WAV it produced.
// The output file lives only for the duration of the call.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errorsx.New(errorsx.ReasonTTSEmptyAudio, "piper: empty text")
	}
	out, err := os.CreateTemp(s.cfg.TempDir, "tutorvoice-*.wav")
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("piper temp file: %w", err), errorsx.ReasonTTSSynthesize)
	}
	path := out.Name()
	_ = out.Close()
	defer os.Remove(path)

	args := []string{"--model", s.cfg.Model, "--output_file", path}
	if s.cfg.Speaker >= 0 {
		args = append(args, "--speaker", fmt.Sprint(s.cfg.Speaker))
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		s.log.Warn("piper failed", slog.String("error", err.Error()), slog.String("stderr", logging.Clip(msg, 200)))
		return nil, errorsx.Wrap(fmt.Errorf("piper: %w: %s", err, msg), errorsx.ReasonTTSSynthesize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("piper output: %w", err), errorsx.ReasonTTSSynthesize)
	}
	if len(data) == 0 {
		return nil, errorsx.New(errorsx.ReasonTTSEmptyAudio, "piper produced no audio")
	}
	return data, nil
}

// Available reports whether the configured binary can be found.
func (s *Synthesizer) Available() error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return errors.Join(errors.New("piper binary not found"), err)
	}
	return nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

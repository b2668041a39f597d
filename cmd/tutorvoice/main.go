package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/tutorvoice/pkg/aggregators"
	"github.com/harunnryd/tutorvoice/pkg/config"
	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/logging"
	"github.com/harunnryd/tutorvoice/pkg/mathspeech"
	"github.com/harunnryd/tutorvoice/pkg/metrics"
	"github.com/harunnryd/tutorvoice/pkg/providers"
	"github.com/harunnryd/tutorvoice/pkg/providers/piper"
	"github.com/harunnryd/tutorvoice/pkg/resilience"
	"github.com/harunnryd/tutorvoice/pkg/runner"
	"github.com/harunnryd/tutorvoice/pkg/session"
	"github.com/harunnryd/tutorvoice/pkg/synthesis"
	wsserver "github.com/harunnryd/tutorvoice/pkg/transports/websocket"
	"github.com/harunnryd/tutorvoice/pkg/tutor"
	"github.com/harunnryd/tutorvoice/pkg/vad"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("tutorvoice stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.InitLogger(logging.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.SetRedaction(cfg.Privacy.RedactPII)

	obs, metricsHandler, closeObs, err := buildObservers(cfg.Metrics, logger)
	if err != nil {
		return err
	}

	registry := providers.NewDefaultRegistry()
	transcriber, err := registry.Transcriber(cfg.Vendors.STT)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	synth, err := registry.Synthesizer(cfg.Vendors.TTS)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	if p, ok := synth.(*piper.Synthesizer); ok {
		if err := p.Available(); err != nil {
			logger.Warn("piper not found, synthesis will drop every unit", slog.String("error", err.Error()))
		}
	}
	baseGen, err := registry.Generator(cfg.Vendors.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	gen := llm.NewCircuitBreakerGenerator(
		llm.NewRetryGenerator(baseGen, llm.RetryConfig{
			MaxAttempts: cfg.Generation.MaxAttempts,
			BaseDelay:   cfg.Generation.RetryBackoff(),
			Jitter:      0.2,
		}),
		resilience.NewCircuitBreaker(cfg.Generation.BreakerThreshold, cfg.Generation.BreakerCooldown()),
	)
	gen.SetObserver(obs)

	var routerGen llm.Generator
	if cfg.Subjects.LLMFallback {
		routerGen = gen
	}
	orch := tutor.NewOrchestrator(gen,
		tutor.NewRouter(routerGen, cfg.Subjects.RouterModel),
		tutor.WithProfiles(tutor.MergeProfiles(tutor.DefaultProfiles(), cfg.Subjects.Models, cfg.Subjects.Prompts)),
		tutor.WithObserver(obs),
		tutor.WithTemperature(cfg.Generation.Temperature),
		tutor.WithLogger(logger),
	)

	synthOpts := []synthesis.Option{
		synthesis.WithNormalizer(buildNormalizer(cfg.Synthesis)),
		synthesis.WithPollInterval(cfg.Synthesis.PollInterval()),
		synthesis.WithJoinTimeout(cfg.Synthesis.JoinTimeout()),
		synthesis.WithRetry(resilience.NewRetryPolicy(cfg.Synthesis.Retries, cfg.Synthesis.RetryBackoff())),
		// One breaker per vendor, shared by every session.
		synthesis.WithBreaker(resilience.NewCircuitBreaker(cfg.Synthesis.BreakerThreshold, cfg.Synthesis.BreakerCooldown())),
	}
	vadCfg := vad.Config{
		SampleRate:        cfg.Audio.SampleRate,
		FrameDurationMS:   cfg.Audio.FrameMS,
		PaddingDurationMS: cfg.Audio.PaddingMS,
		BytesPerSample:    2,
		Ratio:             cfg.Audio.Ratio,
	}
	if err := vadCfg.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	classifier := vad.NewEnergyClassifier(cfg.Audio.EnergyThreshold)
	bufferCfg := aggregators.SentenceBufferConfig{
		MinChars:      cfg.Buffer.MinChars,
		MaxChars:      cfg.Buffer.MaxChars,
		FirstMinChars: cfg.Buffer.FirstMinChars,
	}

	newSession := func(id string, conn session.Conn) (*session.Session, error) {
		return session.New(session.Config{
			ID:         id,
			VAD:        vadCfg,
			Classifier: classifier,
			Buffer:     bufferCfg,
		}, session.Deps{
			Transcriber:      transcriber,
			Orchestrator:     orch,
			Synthesizer:      synth,
			SynthesisOptions: synthOpts,
			Observer:         obs,
			Logger:           logger,
		}, conn)
	}

	server := wsserver.New(wsserver.Config{
		Addr:              cfg.Server.Addr,
		StaticDir:         cfg.Server.StaticDir,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout(),
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
	}, newSession, wsserver.WithMetricsHandler(metricsHandler), wsserver.WithLogger(logger))

	logger.Info("providers ready",
		slog.String("stt", transcriber.Name()),
		slog.String("tts", synth.Name()),
		slog.String("llm", baseGen.Name()),
		slog.String("environment", cfg.Environment))

	lr := runner.NewLifecycleRunner(server, runner.Hooks{
		OnStart: server.Start,
		OnStop:  closeObs,
	}, cfg.Server.DrainTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := lr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildNormalizer(cfg config.SynthesisConfig) *mathspeech.Normalizer {
	var opts []mathspeech.Option
	if !cfg.MathPauses {
		opts = append(opts, mathspeech.WithoutPauses())
	}
	if len(cfg.Replacements) > 0 {
		opts = append(opts, mathspeech.WithReplacements(cfg.Replacements))
	}
	return mathspeech.New(opts...)
}

// buildObservers returns the event sink shared by every session, the
// /metrics handler (nil when disabled) and a close func for shutdown.
func buildObservers(cfg config.MetricsConfig, logger *slog.Logger) (metrics.Observer, http.Handler, func(), error) {
	var sinks metrics.Multi
	var handler http.Handler
	var closers []io.Closer

	if cfg.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sinks = append(sinks, metrics.NewPrometheusObserver(reg))
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.LogEvents {
		sinks = append(sinks, metrics.NewLoggerObserver(logging.NewComponentLogger(logger, "metrics")))
	}
	if cfg.EventsFile != "" {
		f, err := os.OpenFile(cfg.EventsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics.events_file: %w", err)
		}
		sinks = append(sinks, metrics.NewJSONLObserver(f))
		closers = append(closers, f)
	}

	async := metrics.NewAsyncObserver(sinks, 1024)
	closeFn := func() {
		async.Close()
		if n := async.Dropped(); n > 0 {
			logger.Warn("metrics events dropped", slog.Int64("count", n))
		}
		for _, c := range closers {
			_ = c.Close()
		}
	}
	return async, handler, closeFn, nil
}

// Package deepgram transcribes finished speech segments over the Deepgram
// live websocket API. Each segment gets its own short-lived connection.
package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/tutorvoice/pkg/adapters/stt"
	"github.com/harunnryd/tutorvoice/pkg/errorsx"
	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey   string
	Model    string
	Language string
	// UtteranceEndMS is forwarded to Deepgram and also bounds how long a
	// segment waits for trailing finals once audio has been sent.
	UtteranceEndMS int
	// TrailingSilenceMS of zero samples is appended so endpointing fires.
	TrailingSilenceMS int
	Timeout           time.Duration
}

type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "fr"
	}
	if cfg.UtteranceEndMS <= 0 {
		cfg.UtteranceEndMS = 1000
	}
	if cfg.TrailingSilenceMS <= 0 {
		cfg.TrailingSilenceMS = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Transcriber{cfg: cfg, logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt")}, nil
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, seg frames.SpeechSegment) (string, error) {
	if seg.IsEmpty() {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	col := newCollector(t.logger)
	opts := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       t.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     seg.SampleRate,
		InterimResults: true,
		VadEvents:      true,
		SmartFormat:    true,
		UtteranceEndMs: strconv.Itoa(t.cfg.UtteranceEndMS),
	}
	dg, err := client.NewWSUsingCallback(ctx, t.cfg.APIKey, &interfaces.ClientOptions{}, opts, col)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("deepgram client: %w", err), errorsx.ReasonSTTTranscribe)
	}
	if !dg.Connect() {
		return "", errorsx.New(errorsx.ReasonSTTTranscribe, "deepgram connection failed")
	}
	defer dg.Stop()

	go func() {
		if err := dg.Stream(t.payload(seg)); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
			col.fail(err)
		}
	}()

	idle := time.Duration(t.cfg.UtteranceEndMS)*time.Millisecond + seg.Duration
	text, err := col.wait(ctx, idle)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	t.logger.Debug("segment transcribed",
		slog.Duration("segment", seg.Duration),
		slog.String("text", logging.SafeText(text, 80)))
	return text, nil
}

func (t *Transcriber) payload(seg frames.SpeechSegment) io.Reader {
	bps := seg.BytesPerSample
	if bps <= 0 {
		bps = 2
	}
	silence := make([]byte, seg.SampleRate*bps*t.cfg.TrailingSilenceMS/1000)
	return io.MultiReader(bytes.NewReader(seg.Data), bytes.NewReader(silence))
}

// collector gathers final transcripts for one segment. It implements the
// Deepgram live callback.
type collector struct {
	mu     sync.Mutex
	finals []string
	err    error
	done   chan struct{}
	once   sync.Once
	bump   chan struct{}
	logger *slog.Logger
}

func newCollector(logger *slog.Logger) *collector {
	return &collector{done: make(chan struct{}), bump: make(chan struct{}, 1), logger: logger}
}

// add records one transcript message. speech_final only marks an endpoint
// inside the segment, so later finals are still collected.
func (c *collector) add(transcript string, isFinal bool) {
	select {
	case c.bump <- struct{}{}:
	default:
	}
	transcript = strings.TrimSpace(transcript)
	if isFinal && transcript != "" {
		c.mu.Lock()
		c.finals = append(c.finals, transcript)
		c.mu.Unlock()
	}
}

func (c *collector) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.finish()
}

func (c *collector) finish() { c.once.Do(func() { close(c.done) }) }

func (c *collector) text() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.finals, " "), c.err
}

// wait returns on utterance end or close, on error, or once no message has
// been seen for idle.
func (c *collector) wait(ctx context.Context, idle time.Duration) (string, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-c.done:
			return c.text()
		case <-c.bump:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		case <-timer.C:
			return c.text()
		case <-ctx.Done():
			text, err := c.text()
			if text != "" && err == nil {
				return text, nil
			}
			return "", ctx.Err()
		}
	}
}

func (c *collector) Open(*msginterfaces.OpenResponse) error { return nil }

func (c *collector) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	c.add(mr.Channel.Alternatives[0].Transcript, mr.IsFinal)
	return nil
}

func (c *collector) Metadata(md *msginterfaces.MetadataResponse) error {
	c.logger.Debug("deepgram metadata", slog.String("request_id", md.RequestID))
	return nil
}

func (c *collector) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *collector) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	c.finish()
	return nil
}

func (c *collector) Close(*msginterfaces.CloseResponse) error {
	c.finish()
	return nil
}

func (c *collector) Error(er *msginterfaces.ErrorResponse) error {
	c.fail(fmt.Errorf("deepgram %s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *collector) UnhandledEvent(data []byte) error {
	c.logger.Debug("deepgram unhandled event", slog.Int("bytes", len(data)))
	return nil
}

var (
	_ stt.Transcriber                   = (*Transcriber)(nil)
	_ msginterfaces.LiveMessageCallback = (*collector)(nil)
)

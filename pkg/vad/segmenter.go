// Package vad cuts a continuous PCM byte stream into speech segments.
//
// A Segmenter consumes fixed-size frames, asks a Classifier whether each frame
// is voiced and runs a two-state hysteresis machine over a ring buffer of the
// most recent frames. It is not safe for concurrent use; keep one per
// connection.
package vad

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/tutorvoice/pkg/frames"
	"github.com/harunnryd/tutorvoice/pkg/logging"
)

// State is the segmentation state.
type State int

const (
	StateIdle State = iota
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTriggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the framing parameters of a Segmenter.
type Config struct {
	SampleRate        int
	FrameDurationMS   int
	PaddingDurationMS int
	BytesPerSample    int
	// Ratio is the hysteresis fraction of the ring that must agree before the
	// state flips.
	Ratio float64
}

// DefaultConfig is 16 kHz mono 16-bit audio, 30 ms frames and 300 ms padding.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameDurationMS:   30,
		PaddingDurationMS: 300,
		BytesPerSample:    2,
		Ratio:             0.9,
	}
}

// FrameBytes is the byte length of one frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameDurationMS / 1000 * c.BytesPerSample
}

// RingCapacity is the number of frames the padding window holds.
func (c Config) RingCapacity() int {
	if c.FrameDurationMS <= 0 {
		return 0
	}
	return c.PaddingDurationMS / c.FrameDurationMS
}

// Validate reports configuration mistakes that make segmentation impossible.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameDurationMS <= 0 {
		errs = append(errs, fmt.Errorf("frame duration must be positive, got %dms", c.FrameDurationMS))
	}
	if c.BytesPerSample <= 0 {
		errs = append(errs, fmt.Errorf("bytes per sample must be positive, got %d", c.BytesPerSample))
	}
	if c.Ratio <= 0 || c.Ratio >= 1 {
		errs = append(errs, fmt.Errorf("ratio must be in (0, 1), got %v", c.Ratio))
	}
	if len(errs) == 0 {
		if c.FrameBytes() <= 0 {
			errs = append(errs, fmt.Errorf("frame of %dms at %d Hz holds no samples", c.FrameDurationMS, c.SampleRate))
		}
		if c.RingCapacity() <= 0 {
			errs = append(errs, fmt.Errorf("padding %dms is shorter than one %dms frame", c.PaddingDurationMS, c.FrameDurationMS))
		}
	}
	return errors.Join(errs...)
}

type ringEntry struct {
	frame  []byte
	voiced bool
}

// ring is a fixed-capacity FIFO that evicts its oldest entry when full and
// keeps a running count of voiced entries.
type ring struct {
	entries []ringEntry
	start   int
	size    int
	voiced  int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]ringEntry, capacity)}
}

func (r *ring) push(e ringEntry) {
	capacity := len(r.entries)
	if r.size == capacity {
		if r.entries[r.start].voiced {
			r.voiced--
		}
		r.entries[r.start] = e
		r.start = (r.start + 1) % capacity
	} else {
		r.entries[(r.start+r.size)%capacity] = e
		r.size++
	}
	if e.voiced {
		r.voiced++
	}
}

func (r *ring) unvoiced() int { return r.size - r.voiced }

func (r *ring) each(fn func(ringEntry)) {
	for i := 0; i < r.size; i++ {
		fn(r.entries[(r.start+i)%len(r.entries)])
	}
}

func (r *ring) clear() {
	for i := range r.entries {
		r.entries[i] = ringEntry{}
	}
	r.start, r.size, r.voiced = 0, 0, 0
}

// Segmenter turns raw PCM chunks into SpeechSegments.
type Segmenter struct {
	cfg        Config
	frameBytes int
	threshold  float64
	classifier Classifier

	state       State
	pending     []byte
	ring        *ring
	acc         []byte
	accFrames   int
	classifyErr uint64

	logger *slog.Logger
}

// NewSegmenter validates cfg and returns an idle segmenter.
func NewSegmenter(cfg Config, classifier Classifier) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad config: %w", err)
	}
	if classifier == nil {
		return nil, errors.New("vad: classifier is required")
	}
	k := cfg.RingCapacity()
	return &Segmenter{
		cfg:        cfg,
		frameBytes: cfg.FrameBytes(),
		threshold:  cfg.Ratio * float64(k),
		classifier: classifier,
		ring:       newRing(k),
		logger:     logging.NewComponentLogger(slog.Default(), "vad"),
	}, nil
}

// SetLogger configures structured logging for the segmenter.
func (s *Segmenter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logging.NewComponentLogger(logger, "vad")
	}
}

func (s *Segmenter) Config() Config { return s.cfg }
func (s *Segmenter) State() State   { return s.state }

// Buffered is the number of bytes waiting for a complete frame.
func (s *Segmenter) Buffered() int { return len(s.pending) }

// ClassifierErrors counts frames that were forced unvoiced because the
// classifier failed.
func (s *Segmenter) ClassifierErrors() uint64 { return s.classifyErr }

// ProcessChunk feeds raw PCM. It returns a completed segment at most once per
// call; whole frames left after a completed segment stay buffered and are
// consumed by the next call.
func (s *Segmenter) ProcessChunk(chunk []byte) (frames.SpeechSegment, bool) {
	s.pending = append(s.pending, chunk...)
	defer s.compact()

	for len(s.pending) >= s.frameBytes {
		frame := make([]byte, s.frameBytes)
		copy(frame, s.pending[:s.frameBytes])
		s.pending = s.pending[s.frameBytes:]

		if seg, ok := s.step(frame, s.classify(frame)); ok {
			return seg, true
		}
	}
	return frames.SpeechSegment{}, false
}

// Reset drops buffered audio and returns to IDLE.
func (s *Segmenter) Reset() {
	s.state = StateIdle
	s.pending = nil
	s.acc = nil
	s.accFrames = 0
	s.ring.clear()
}

func (s *Segmenter) classify(frame []byte) bool {
	voiced, err := s.classifier.IsSpeech(frame, s.cfg.SampleRate)
	if err != nil {
		s.classifyErr++
		s.logger.Debug("vad classifier failed, frame treated as unvoiced",
			slog.String("error", err.Error()))
		return false
	}
	return voiced
}

func (s *Segmenter) step(frame []byte, voiced bool) (frames.SpeechSegment, bool) {
	switch s.state {
	case StateIdle:
		s.ring.push(ringEntry{frame: frame, voiced: voiced})
		if float64(s.ring.voiced) > s.threshold {
			s.state = StateTriggered
			s.ring.each(func(e ringEntry) {
				s.acc = append(s.acc, e.frame...)
				s.accFrames++
			})
			s.ring.clear()
			s.logger.Debug("vad triggered", slog.Int("lead_in_frames", s.accFrames))
		}
	case StateTriggered:
		s.acc = append(s.acc, frame...)
		s.accFrames++
		s.ring.push(ringEntry{frame: frame, voiced: voiced})
		if float64(s.ring.unvoiced()) > s.threshold {
			seg := frames.NewSpeechSegment(s.acc, s.cfg.SampleRate, s.cfg.BytesPerSample, s.accFrames)
			s.state = StateIdle
			s.acc = nil
			s.accFrames = 0
			s.ring.clear()
			s.logger.Debug("vad segment complete",
				slog.Int("frames", seg.Frames),
				slog.Int("size_bytes", seg.Len()),
				slog.Duration("duration", seg.Duration))
			return seg, true
		}
	}
	return frames.SpeechSegment{}, false
}

func (s *Segmenter) compact() {
	if len(s.pending) == 0 {
		s.pending = nil
		return
	}
	s.pending = append([]byte(nil), s.pending...)
}

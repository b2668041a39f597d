package vad

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

const testRate = 16000

func silence(ms int) []byte {
	return make([]byte, testRate*ms/1000*2)
}

func tone(ms int) []byte {
	n := testRate * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// feed pushes data in fixed-size chunks and collects every completed segment.
func feed(t *testing.T, s *Segmenter, data []byte, chunk int) [][]byte {
	t.Helper()
	var segs [][]byte
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		if seg, ok := s.ProcessChunk(data[off:end]); ok {
			segs = append(segs, seg.Data)
		}
	}
	return segs
}

func TestNewSegmenterRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{SampleRate: 0, FrameDurationMS: 30, PaddingDurationMS: 300, BytesPerSample: 2, Ratio: 0.9},
		{SampleRate: 16000, FrameDurationMS: 0, PaddingDurationMS: 300, BytesPerSample: 2, Ratio: 0.9},
		{SampleRate: 16000, FrameDurationMS: 30, PaddingDurationMS: 10, BytesPerSample: 2, Ratio: 0.9},
		{SampleRate: 16000, FrameDurationMS: 30, PaddingDurationMS: 300, BytesPerSample: 0, Ratio: 0.9},
		{SampleRate: 16000, FrameDurationMS: 30, PaddingDurationMS: 300, BytesPerSample: 2, Ratio: 1.5},
	}
	for i, cfg := range cases {
		if _, err := NewSegmenter(cfg, NewEnergyClassifier(0)); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, cfg)
		}
	}
	if _, err := NewSegmenter(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for nil classifier")
	}
}

func TestDefaultConfigGeometry(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.FrameBytes() != 960 {
		t.Fatalf("expected 960-byte frames, got %d", cfg.FrameBytes())
	}
	if cfg.RingCapacity() != 10 {
		t.Fatalf("expected ring of 10 frames, got %d", cfg.RingCapacity())
	}
}

func TestSegmenterEndToEndSingleUtterance(t *testing.T) {
	s, err := NewSegmenter(DefaultConfig(), NewEnergyClassifier(0))
	if err != nil {
		t.Fatalf("new segmenter: %v", err)
	}
	audio := concat(silence(500), tone(1000), silence(500))

	segs := feed(t, s, audio, 640) // 20 ms chunks, never frame aligned
	if len(segs) != 1 {
		t.Fatalf("expected exactly one segment, got %d", len(segs))
	}

	frameBytes := DefaultConfig().FrameBytes()
	if len(segs[0])%frameBytes != 0 {
		t.Fatalf("segment length %d is not a whole number of frames", len(segs[0]))
	}
	// 34 voiced frames (one straddles the onset) plus the 10 trailing
	// silent frames that close the ring.
	if got := len(segs[0]) / frameBytes; got != 44 {
		t.Fatalf("expected 44 frames, got %d", got)
	}
	dur := time.Duration(len(segs[0])/2) * time.Second / testRate
	if dur < time.Second || dur > time.Second+400*time.Millisecond {
		t.Fatalf("segment duration %s outside voiced+lead-in window", dur)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE after segment, got %s", s.State())
	}
	if s.Buffered() >= frameBytes {
		t.Fatalf("expected only a partial frame buffered, got %d bytes", s.Buffered())
	}
}

func TestSegmenterSilenceOnlyNeverTriggers(t *testing.T) {
	s, _ := NewSegmenter(DefaultConfig(), NewEnergyClassifier(0))
	if segs := feed(t, s, silence(3000), 4096); len(segs) != 0 {
		t.Fatalf("expected no segments, got %d", len(segs))
	}
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", s.State())
	}
}

func TestSegmenterOnsetLeadInComesFromRing(t *testing.T) {
	// Scripted classifier: frames are labelled by their first byte.
	cls := ClassifierFunc(func(frame []byte, _ int) (bool, error) {
		return frame[0] == 1, nil
	})
	cfg := Config{SampleRate: 1000, FrameDurationMS: 10, PaddingDurationMS: 40, BytesPerSample: 1, Ratio: 0.5}
	s, err := NewSegmenter(cfg, cls)
	if err != nil {
		t.Fatalf("new segmenter: %v", err)
	}
	fb := cfg.FrameBytes() // 10 bytes, ring of 4, flips on 3 agreeing frames

	mk := func(labels ...byte) []byte {
		var out []byte
		for i, l := range labels {
			f := make([]byte, fb)
			f[0] = l
			f[1] = byte(i)
			out = append(out, f...)
		}
		return out
	}

	// unvoiced, voiced, voiced, voiced -> trigger with all four frames as lead-in
	if _, ok := s.ProcessChunk(mk(0, 1, 1, 1)); ok {
		t.Fatalf("segment must not complete on trigger")
	}
	if s.State() != StateTriggered {
		t.Fatalf("expected TRIGGERED, got %s", s.State())
	}
	seg, ok := s.ProcessChunk(mk(1, 0, 0, 0))
	if !ok {
		t.Fatalf("expected segment after three unvoiced frames")
	}
	if seg.Frames != 8 || seg.Len() != 8*fb {
		t.Fatalf("expected 8 frames, got %d (%d bytes)", seg.Frames, seg.Len())
	}
	if seg.Data[0] != 0 {
		t.Fatalf("expected lead-in to start with the unvoiced onset frame")
	}
}

func TestSegmenterReturnsAtMostOneSegmentPerCall(t *testing.T) {
	cls := ClassifierFunc(func(frame []byte, _ int) (bool, error) { return frame[0] == 1, nil })
	cfg := Config{SampleRate: 1000, FrameDurationMS: 10, PaddingDurationMS: 20, BytesPerSample: 1, Ratio: 0.5}
	s, _ := NewSegmenter(cfg, cls)
	fb := cfg.FrameBytes()
	var data []byte
	for _, l := range []byte{1, 1, 0, 0, 1, 1, 0, 0} {
		f := make([]byte, fb)
		f[0] = l
		data = append(data, f...)
	}
	if _, ok := s.ProcessChunk(data); !ok {
		t.Fatalf("expected first segment")
	}
	if s.Buffered() != 4*fb {
		t.Fatalf("expected remaining frames buffered, got %d bytes", s.Buffered())
	}
	if _, ok := s.ProcessChunk(nil); !ok {
		t.Fatalf("expected second segment from buffered frames")
	}
}

func TestSegmenterClassifierErrorCountsAsUnvoiced(t *testing.T) {
	cls := ClassifierFunc(func([]byte, int) (bool, error) { return true, errors.New("model crashed") })
	s, _ := NewSegmenter(DefaultConfig(), cls)
	if segs := feed(t, s, tone(1000), 960); len(segs) != 0 {
		t.Fatalf("expected no segments when classifier fails")
	}
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", s.State())
	}
	if s.ClassifierErrors() == 0 {
		t.Fatalf("expected classifier errors to be counted")
	}
}

func TestSegmenterResetDropsState(t *testing.T) {
	s, _ := NewSegmenter(DefaultConfig(), NewEnergyClassifier(0))
	s.ProcessChunk(tone(700))
	if s.State() != StateTriggered {
		t.Fatalf("expected TRIGGERED before reset, got %s", s.State())
	}
	s.Reset()
	if s.State() != StateIdle || s.Buffered() != 0 {
		t.Fatalf("expected clean IDLE state after reset")
	}
}

func TestEnergyClassifier(t *testing.T) {
	c := NewEnergyClassifier(0)
	if v, err := c.IsSpeech(silence(30), testRate); err != nil || v {
		t.Fatalf("silence classified voiced=%v err=%v", v, err)
	}
	if v, err := c.IsSpeech(tone(30), testRate); err != nil || !v {
		t.Fatalf("tone classified voiced=%v err=%v", v, err)
	}
	if _, err := c.IsSpeech([]byte{1, 2, 3}, testRate); err == nil {
		t.Fatalf("expected error for odd-length frame")
	}
}

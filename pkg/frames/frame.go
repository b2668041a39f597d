package frames

import (
	"time"
	"unicode/utf8"
)

// Meta keys shared by log attributes and metrics tags.
const (
	MetaSessionID = "session_id"
	MetaTurnID    = "turn_id"
	MetaSource    = "source"
	MetaSubject   = "subject"
	MetaModel     = "model"
	MetaIndex     = "index"
	MetaReason    = "reason_code"
)

// SpeechSegment is one utterance cut out of a PCM stream by the segmenter:
// the concatenation of the voiced frames plus the onset lead-in.
type SpeechSegment struct {
	Data           []byte
	SampleRate     int
	BytesPerSample int
	Frames         int
	Duration       time.Duration
}

// NewSpeechSegment builds a segment and derives its duration from the byte length.
func NewSpeechSegment(data []byte, sampleRate, bytesPerSample, frameCount int) SpeechSegment {
	return SpeechSegment{
		Data:           data,
		SampleRate:     sampleRate,
		BytesPerSample: bytesPerSample,
		Frames:         frameCount,
		Duration:       PCMDuration(len(data), sampleRate, bytesPerSample),
	}
}

func (s SpeechSegment) Len() int      { return len(s.Data) }
func (s SpeechSegment) IsEmpty() bool { return len(s.Data) == 0 }

// AudioChunk is one synthesized speakable unit, ready for transport.
// Index starts at 0 for every pipeline run and grows by one per chunk.
type AudioChunk struct {
	Index    int
	Audio    []byte
	Text     string
	Duration time.Duration
}

// Preview returns the source text shortened to max runes for client metadata.
func (c AudioChunk) Preview(max int) string {
	if max <= 0 || utf8.RuneCountInString(c.Text) <= max {
		return c.Text
	}
	r := []rune(c.Text)
	return string(r[:max]) + "..."
}

// PCMDuration returns the playback length of mono PCM of the given byte size.
func PCMDuration(size, sampleRate, bytesPerSample int) time.Duration {
	if size <= 0 || sampleRate <= 0 || bytesPerSample <= 0 {
		return 0
	}
	samples := size / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

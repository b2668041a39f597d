package metrics

import "time"

// Event names recorded by the speech pipeline and the tutor session.
const (
	EventVADSegment      = "vad_segment"
	EventSTTDone         = "stt_done"
	EventRouteSelected   = "route_selected"
	EventRetrieveDone    = "retrieve_done"
	EventLLMFirstToken   = "llm_first_token"
	EventTTSUnitReady    = "tts_unit_ready"
	EventTTSUnitDropped  = "tts_unit_dropped"
	EventTTSFirstAudio   = "tts_first_audio"
	EventTurnCompleted   = "turn_completed"
	EventSessionOpened   = "session_opened"
	EventSessionClosed   = "session_closed"
	EventRateLimit       = "rate_limit"
	EventBreakerOpen     = "breaker_open"
	EventBreakerClose    = "breaker_close"
	EventBreakerDenied   = "breaker_denied"
	EventShutdownTimeout = "shutdown_timeout"
)

// MetricsEvent is a single observation. Value carries a latency in
// milliseconds for timing events and 1 for plain counts.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Since builds a timing event whose value is the elapsed milliseconds.
func Since(name string, start time.Time, tags map[string]string) MetricsEvent {
	now := time.Now()
	return MetricsEvent{
		Name:  name,
		Time:  now,
		Value: float64(now.Sub(start).Microseconds()) / 1000,
		Tags:  tags,
	}
}

// Count builds a counting event.
func Count(name string, tags map[string]string) MetricsEvent {
	return MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags}
}

// Multi fans an event out to every non-nil observer.
type Multi []Observer

func (m Multi) RecordEvent(ev MetricsEvent) {
	for _, obs := range m {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}

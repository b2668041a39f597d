package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// timed lists the events whose Value is a latency in milliseconds.
var timed = map[string]bool{
	EventVADSegment:    true,
	EventSTTDone:       true,
	EventRouteSelected: true,
	EventRetrieveDone:  true,
	EventLLMFirstToken: true,
	EventTTSUnitReady:  true,
	EventTTSFirstAudio: true,
	EventTurnCompleted: true,
}

// PrometheusObserver maps events onto a counter per name/component and a
// latency histogram for timing events.
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	sessions prometheus.Gauge
}

// NewPrometheusObserver registers its collectors on reg, or on the default
// registry when reg is nil.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusObserver{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tutorvoice_events_total",
			Help: "Total number of pipeline events by name and component",
		}, []string{"name", "component"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutorvoice_stage_latency_seconds",
			Help:    "Latency of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"name"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tutorvoice_active_sessions",
			Help: "Current number of open voice sessions",
		}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	p.events.WithLabelValues(ev.Name, ev.Tags["component"]).Inc()
	switch ev.Name {
	case EventSessionOpened:
		p.sessions.Inc()
	case EventSessionClosed:
		p.sessions.Dec()
	}
	if timed[ev.Name] {
		p.latency.WithLabelValues(ev.Name).Observe(ev.Value / 1000)
	}
}

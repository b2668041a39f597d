package metrics

import (
	"context"
	"io"
	"log/slog"
)

// LoggerObserver writes events as structured log records. With a JSON handler
// this doubles as a JSONL event sink.
type LoggerObserver struct {
	log   *slog.Logger
	level slog.Level
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log, level: slog.LevelDebug}
}

// NewJSONLObserver writes one JSON object per event to w.
func NewJSONLObserver(w io.Writer) *LoggerObserver {
	if w == nil {
		w = io.Discard
	}
	return &LoggerObserver{log: slog.New(slog.NewJSONHandler(w, nil)), level: slog.LevelInfo}
}

func (o *LoggerObserver) RecordEvent(ev MetricsEvent) {
	attrs := make([]slog.Attr, 0, 3+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs,
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	)
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), o.level, "metrics", attrs...)
}

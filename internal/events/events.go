package events

import (
	"time"

	"codeberg.org/modelrelay/relay/internal/logger"
)

// Event is one structured record from the dispatch pipeline: cache hits and
// misses, candidate selection, circuit transitions, backend failures, final
// outcomes. Fields never contain prompt or response text.
type Event struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Name   string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink receives structured events. Implementations must not block; event
// emission sits on the request path.
type Sink interface {
	Emit(level, name string, fields map[string]any)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(string, string, map[string]any) {}

// LogSink forwards events to the structured logger.
type LogSink struct{}

func (LogSink) Emit(level, name string, fields map[string]any) {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	switch level {
	case "debug":
		logger.Debug(name, args...)
	case "warn":
		logger.Warn(name, args...)
	case "error":
		logger.Error(name, args...)
	default:
		logger.Info(name, args...)
	}
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(level, name string, fields map[string]any) {
	for _, s := range m {
		s.Emit(level, name, fields)
	}
}

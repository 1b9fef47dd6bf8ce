// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package events

import "context"

// Logger is the subset of *slog.Logger used by [LogSink].
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// LogSink writes events to a structured logger. Critical events are logged
// as errors, warnings as warnings and everything else as info.
type LogSink struct {
	logger Logger
}

// NewLogSink returns a [Sink] that logs to logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs ev.
func (s *LogSink) Emit(_ context.Context, ev Event) {
	kv := []interface{}{"event", ev.Name, "severity", string(ev.Severity)}
	if len(ev.Archive) > 0 {
		kv = append(kv, "archive", ev.Archive)
	}
	if len(ev.Entry) > 0 {
		kv = append(kv, "entry", ev.Entry)
	}
	for k, v := range ev.Details {
		kv = append(kv, k, v)
	}

	switch ev.Severity {
	case SeverityCritical:
		s.logger.Error("security event", kv...)
	case SeverityWarning:
		s.logger.Warn("security event", kv...)
	default:
		s.logger.Info("security event", kv...)
	}
}

// Multi fans out events to all sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) {
		for _, s := range sinks {
			s.Emit(ctx, ev)
		}
	})
}

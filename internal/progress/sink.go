// Package progress carries scan checkpoints to whoever is watching: the task
// store, a Redis stream for live clients, or the log.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"viammo.app/tripscan/internal/model"
)

// Sink receives progress events. Emit must not block for long and never
// fails the scan; implementations log their own errors.
type Sink interface {
	Emit(ctx context.Context, ev model.ProgressEvent)
}

type SinkFunc func(ctx context.Context, ev model.ProgressEvent)

func (f SinkFunc) Emit(ctx context.Context, ev model.ProgressEvent) {
	f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, model.ProgressEvent) {})

// Event builds an in-progress event stamped with the current time.
func Event(pct int, format string, args ...any) model.ProgressEvent {
	return model.ProgressEvent{
		Message:   fmt.Sprintf(format, args...),
		Progress:  pct,
		Status:    model.ScanStatusInProgress,
		Timestamp: time.Now().UTC(),
	}
}

// Report emits an in-progress event.
func Report(ctx context.Context, sink Sink, pct int, format string, args ...any) {
	sink.Emit(ctx, Event(pct, format, args...))
}

type multi []Sink

// Multi emits to every sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(ctx context.Context, ev model.ProgressEvent) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, ev model.ProgressEvent) {
	attrs := []any{
		"progress", ev.Progress,
		"status", ev.Status,
	}
	if ev.Emails != nil {
		attrs = append(attrs, "emails", len(ev.Emails))
	}
	if ev.Recommendations != nil {
		attrs = append(attrs, "recommendations", len(ev.Recommendations))
	}

	switch ev.Status {
	case model.ScanStatusFailed:
		slog.ErrorContext(ctx, ev.Message, append(attrs, "error", ev.Error)...)
	default:
		slog.InfoContext(ctx, ev.Message, attrs...)
	}
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (r *Recorder) Emit(_ context.Context, ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []model.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ProgressEvent(nil), r.events...)
}

// Last returns the most recent event, or false if none was recorded.
func (r *Recorder) Last() (model.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return model.ProgressEvent{}, false
	}
	return r.events[len(r.events)-1], true
}

// Messages returns the message of every event, in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Message
	}
	return out
}

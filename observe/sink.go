package observe

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	_ = event
	return nil
}

type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiSink{sinks: filtered}
}

// Emit delivers to every sink and joins their errors.
func (m *MultiSink) Emit(ctx context.Context, event Event) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	event.Normalize()
	level := slog.LevelInfo
	if event.Status == StatusFailed {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.String("function", event.Function),
		slog.String("status", string(event.Status)),
		slog.Int64("durationMs", event.DurationMs),
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.Any(k, v))
	}
	msg := event.Message
	if msg == "" {
		msg = event.Function + " " + string(event.Status)
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
	return nil
}

// Invocation times one function call and reports it to a sink when done.
type Invocation struct {
	sink    Sink
	event   Event
	started time.Time
}

// Start begins timing an invocation of function.
func Start(sink Sink, kind Kind, function string) *Invocation {
	if sink == nil {
		sink = NoopSink{}
	}
	now := time.Now().UTC()
	return &Invocation{
		sink:    sink,
		event:   Event{Timestamp: now, Kind: kind, Function: function, Attributes: map[string]any{}},
		started: now,
	}
}

// Set attaches an attribute to the reported event.
func (inv *Invocation) Set(key string, value any) {
	inv.event.Attributes[key] = value
}

// Skip ends the invocation as skipped with a reason.
func (inv *Invocation) Skip(ctx context.Context, reason string) {
	inv.event.Message = reason
	inv.finish(ctx, StatusSkipped)
}

// End reports the invocation as completed or, when err is non-nil, failed.
// It returns err unchanged.
func (inv *Invocation) End(ctx context.Context, err error) error {
	if err != nil {
		inv.event.Error = err.Error()
		inv.finish(ctx, StatusFailed)
		return err
	}
	inv.finish(ctx, StatusCompleted)
	return nil
}

func (inv *Invocation) finish(ctx context.Context, status Status) {
	inv.event.Status = status
	inv.event.DurationMs = time.Since(inv.started).Milliseconds()
	if err := inv.sink.Emit(ctx, inv.event); err != nil {
		slog.WarnContext(ctx, "observe: emit failed", slog.String("function", inv.event.Function), slog.Any("error", err))
	}
}

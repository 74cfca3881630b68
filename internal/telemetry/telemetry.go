// Package telemetry records tour interaction events.
//
// Every event is a (category, tag) pair. The category is always [Category];
// the tag is built by [Tag] from the view's telemetry base, the step the
// action applies to and the action name, for example
// "crt_tutorial_2--skipped".
//
// Key types:
//   - [Sink] is the tracking interface the session depends on
//   - [ZapSink] writes events to a structured logger
//   - [OTelSink] records events as OpenTelemetry spans
//   - [Recorder] keeps events in memory for tests and the CLI
package telemetry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tourguide/internal/tour"
)

// Category is the event category for all tour interactions.
const Category = "tutorial"

// Action names a tracked tour interaction.
type Action string

const (
	ActionNext    Action = "next"
	ActionPrev    Action = "prev"
	ActionDismiss Action = "dismiss"
	ActionJump    Action = "jump"
	ActionSkipped Action = "skipped"
)

// Tag builds the event tag "{base}_{step}--{action}".
func Tag(base string, step tour.Step, action Action) string {
	return fmt.Sprintf("%s_%d--%s", base, step, action)
}

// Sink receives tracked events. Implementations must be safe for
// concurrent use and must not block for long.
type Sink interface {
	Track(category, event string)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(category, event string)

// Track implements [Sink].
func (f SinkFunc) Track(category, event string) { f(category, event) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(string, string) {})

type multi []Sink

func (m multi) Track(category, event string) {
	for _, s := range m {
		s.Track(category, event)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Safe wraps s so that a panicking sink is logged and swallowed.
// Tracking is best effort and must never abort a tour transition.
func Safe(s Sink, logger *zap.Logger) Sink {
	if s == nil {
		return Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return SinkFunc(func(category, event string) {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("telemetry sink panicked",
					zap.String("category", category),
					zap.String("event", event),
					zap.Any("panic", r),
				)
			}
		}()
		s.Track(category, event)
	})
}

// ZapSink logs each event at info level.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a sink that writes to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("telemetry")}
}

// Track implements [Sink].
func (z *ZapSink) Track(category, event string) {
	z.logger.Info("track", zap.String("category", category), zap.String("event", event))
}

// Event is one recorded (category, tag) pair.
type Event struct {
	Category string `json:"category"`
	Tag      string `json:"tag"`
}

// Recorder stores events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Track implements [Sink].
func (r *Recorder) Track(category, event string) {
	r.mu.Lock()
	r.events = append(r.events, Event{Category: category, Tag: event})
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tags returns only the tags of the recorded events.
func (r *Recorder) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, len(r.events))
	for i, e := range r.events {
		tags[i] = e.Tag
	}
	return tags
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

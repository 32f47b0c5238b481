package goSession

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a session lifecycle event.
type EventType string

const (
	// EventTokenExpired fires whenever the session is found to be no longer valid. Session
	// owners outside the client subscribe to it to drop in-memory user state.
	EventTokenExpired EventType = "token-expired"
	// EventTokenRefreshed fires after a successful refresh, reactive or proactive.
	EventTokenRefreshed EventType = "token-refreshed"
	// EventLoggedIn fires after credentials from a login are persisted.
	EventLoggedIn EventType = "logged-in"
	// EventLoggedOut fires after an explicit logout cleared local state.
	EventLoggedOut EventType = "logged-out"
)

// Event is one session lifecycle notification.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func newEvent(typ EventType, reason string, metadata map[string]string) Event {
	now := time.Now().UTC()
	return Event{
		ID:        ulid.Make().String(),
		Timestamp: now,
		Type:      typ,
		Reason:    reason,
		Metadata:  metadata,
	}
}

// EventSink receives session events.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to [EventSink].
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a [ChannelSink] with the given buffer (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

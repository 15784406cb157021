package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType names a committed transition.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventRefresh        EventType = "refresh"
	EventUnauthorized   EventType = "unauthorized"
	EventRestore        EventType = "restore"
	EventExternalChange EventType = "external_change"
)

// Event describes one transition. Session is the state after it; for logout and
// unauthorized it is empty and Previous holds the session that was dropped.
type Event struct {
	Type      EventType `json:"type"`
	State     State     `json:"-"`
	Session   Session   `json:"session"`
	Previous  Session   `json:"previous"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON renders State by name.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		State string `json:"state"`
	}{alias: alias(e), State: e.State.String()})
}

// Observer receives session events.
type Observer interface {
	Notify(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// ChannelObserver forwards events to a buffered channel. Notify blocks while the
// buffer is full until ctx is done.
type ChannelObserver struct {
	events chan Event
}

func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelObserver{events: make(chan Event, buffer)}
}

func (o *ChannelObserver) Notify(ctx context.Context, event Event) {
	select {
	case o.events <- event:
	case <-ctx.Done():
	}
}

func (o *ChannelObserver) Events() <-chan Event {
	return o.events
}

// JSONWriterObserver writes one JSON line per event.
type JSONWriterObserver struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterObserver(w io.Writer) *JSONWriterObserver {
	return &JSONWriterObserver{writer: w}
}

func (o *JSONWriterObserver) Notify(_ context.Context, event Event) {
	if o == nil || o.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	_, _ = o.writer.Write(append(data, '\n'))
}

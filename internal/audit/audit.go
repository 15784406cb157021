package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Type names an auditable backend action.
type Type string

const (
	LoginSucceeded         Type = "login_succeeded"
	LoginFailed            Type = "login_failed"
	LoginThrottled         Type = "login_throttled"
	LoggedOut              Type = "logged_out"
	TokenRefreshed         Type = "token_refreshed"
	RefreshReused          Type = "refresh_reused"
	PasswordChanged        Type = "password_changed"
	PasswordResetRequested Type = "password_reset_requested"
	PasswordReset          Type = "password_reset"
)

// Event is one audit record. Email is set only when no user id is known.
type Event struct {
	Time      time.Time `json:"time"`
	Type      Type      `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip,omitempty"`
	// Revoked counts sessions ended as a side effect.
	Revoked int `json:"revoked,omitempty"`
}

// Sink receives audit events. Emit must not block the request for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// ChannelSink buffers events in a channel; events past the buffer are dropped.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONLines writes one JSON object per line.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

func (s *JSONLines) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
}

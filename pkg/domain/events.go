package domain

import (
	"context"
	"time"
)

// EventType defines the category of a chat event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventMessageIn    EventType = "message_in"
	EventMessageOut   EventType = "message_out"
	EventUpload       EventType = "upload"
)

// ChatEvent is emitted by the collaborator chat endpoint.
type ChatEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	AppID     string    `json:"app_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for chat observability.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *ChatEvent)
	OnSessionEnd   func(context.Context, *ChatEvent)
	OnMessage      func(context.Context, *ChatEvent)
	OnUpload       func(context.Context, *ChatEvent)
}

// Emit dispatches ev to the matching hook, if any.
func (h LifecycleHooks) Emit(ctx context.Context, ev *ChatEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	var fn func(context.Context, *ChatEvent)
	switch ev.Type {
	case EventSessionStart:
		fn = h.OnSessionStart
	case EventSessionEnd:
		fn = h.OnSessionEnd
	case EventMessageIn, EventMessageOut:
		fn = h.OnMessage
	case EventUpload:
		fn = h.OnUpload
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

package gigsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event names as emitted by the realtime server. EventConnect and
// EventDisconnect are produced locally by the ConnectionManager.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventAuthenticated = "authenticated"
	EventNewMessage    = "newMessage"
	EventTyping        = "typing"
	EventStopTyping    = "stopTyping"
	EventUserOnline    = "userOnline"
	EventUserOffline   = "userOffline"
	EventOnlineUsers   = "onlineUsers"
	EventUnreadCount   = "unreadCount"
	EventNotification  = "notification"
	EventError         = "error"
)

// Outbound event names.
const (
	EmitTyping            = "typing"
	EmitStopTyping        = "stopTyping"
	EmitJoinConversation  = "joinConversation"
	EmitLeaveConversation = "leaveConversation"
	EmitMarkAsRead        = "markAsRead"
	EmitJoinJobRoom       = "joinJobRoom"
	EmitLeaveJobRoom      = "leaveJobRoom"
)

// ErrMalformedEvent is returned by DecodeEvent when a known event carries a
// payload that cannot be used.
var ErrMalformedEvent = errors.New("gigsync: malformed realtime event")

// Envelope is the wire format for all realtime frames.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one decoded inbound realtime event. The set of implementations is
// closed; switch on the concrete type.
type Event interface {
	EventName() string
	isEvent()
}

type ConnectedEvent struct {
	Reconnect bool `json:"reconnect"`
}

type DisconnectedEvent struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type NewMessageEvent struct {
	Message Message
}

// TypingEvent covers both typing and stopTyping.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Typing         bool   `json:"-"`
}

type PresenceJoinEvent struct {
	UserID string `json:"userId"`
}

type PresenceLeaveEvent struct {
	UserID string `json:"userId"`
}

type PresenceSnapshotEvent struct {
	UserIDs []string `json:"userIds"`
}

type UnreadCountEvent struct {
	Count int `json:"count"`
}

// NotificationEvent is a generic platform notification (proposal accepted,
// payment released, ...). It is forwarded, not stored.
type NotificationEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (ConnectedEvent) EventName() string    { return EventConnect }
func (DisconnectedEvent) EventName() string { return EventDisconnect }
func (NewMessageEvent) EventName() string   { return EventNewMessage }
func (e TypingEvent) EventName() string {
	if e.Typing {
		return EventTyping
	}
	return EventStopTyping
}
func (PresenceJoinEvent) EventName() string     { return EventUserOnline }
func (PresenceLeaveEvent) EventName() string    { return EventUserOffline }
func (PresenceSnapshotEvent) EventName() string { return EventOnlineUsers }
func (UnreadCountEvent) EventName() string      { return EventUnreadCount }
func (NotificationEvent) EventName() string     { return EventNotification }

func (ConnectedEvent) isEvent()        {}
func (DisconnectedEvent) isEvent()     {}
func (NewMessageEvent) isEvent()       {}
func (TypingEvent) isEvent()           {}
func (PresenceJoinEvent) isEvent()     {}
func (PresenceLeaveEvent) isEvent()    {}
func (PresenceSnapshotEvent) isEvent() {}
func (UnreadCountEvent) isEvent()      {}
func (NotificationEvent) isEvent()     {}

// RoutedEvents lists the event names the EventRouter subscribes to.
var RoutedEvents = []string{
	EventConnect,
	EventDisconnect,
	EventNewMessage,
	EventTyping,
	EventStopTyping,
	EventUserOnline,
	EventUserOffline,
	EventOnlineUsers,
	EventUnreadCount,
	EventNotification,
}

// DecodeEvent turns a named payload into a typed Event.
func DecodeEvent(name string, payload json.RawMessage) (Event, error) {
	switch name {
	case EventConnect:
		var e ConnectedEvent
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e); err != nil {
				return nil, malformed(name, err)
			}
		}
		return e, nil

	case EventDisconnect:
		var e DisconnectedEvent
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e); err != nil {
				return nil, malformed(name, err)
			}
		}
		return e, nil

	case EventNewMessage:
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, malformed(name, err)
		}
		if m.ID == "" || m.ConversationID == "" {
			return nil, malformed(name, errors.New("missing id or conversationId"))
		}
		return NewMessageEvent{Message: m}, nil

	case EventTyping, EventStopTyping:
		var e TypingEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, malformed(name, err)
		}
		if e.ConversationID == "" || e.UserID == "" {
			return nil, malformed(name, errors.New("missing conversationId or userId"))
		}
		e.Typing = name == EventTyping
		return e, nil

	case EventUserOnline, EventUserOffline:
		var p struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, malformed(name, err)
		}
		if p.UserID == "" {
			return nil, malformed(name, errors.New("missing userId"))
		}
		if name == EventUserOnline {
			return PresenceJoinEvent{UserID: p.UserID}, nil
		}
		return PresenceLeaveEvent{UserID: p.UserID}, nil

	case EventOnlineUsers:
		// Servers send either a bare array or {"userIds": [...]}.
		var ids []string
		if err := json.Unmarshal(payload, &ids); err == nil {
			return PresenceSnapshotEvent{UserIDs: ids}, nil
		}
		var e PresenceSnapshotEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, malformed(name, err)
		}
		return e, nil

	case EventUnreadCount:
		var e UnreadCountEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, malformed(name, err)
		}
		if e.Count < 0 {
			return nil, malformed(name, fmt.Errorf("negative count %d", e.Count))
		}
		return e, nil

	case EventNotification:
		var e NotificationEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, malformed(name, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func malformed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
}

package gigsync

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// RefetchReason says why the router asks for a full conversation refetch.
type RefetchReason string

const (
	RefetchReconnect           RefetchReason = "reconnect"
	RefetchUnknownConversation RefetchReason = "unknown_conversation"
)

// ViewTracker is told about each new message before unread counters move.
// It reports whether an attentive viewer already saw the message.
type ViewTracker interface {
	MessageArrived(msg Message) bool
}

// RouterOption configures an EventRouter.
type RouterOption func(*EventRouter)

func WithRouterLogger(logger *zap.Logger) RouterOption {
	return func(r *EventRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRouterMetrics(m *Metrics) RouterOption {
	return func(r *EventRouter) { r.metrics = m }
}

// WithViewerID lets the router recognise the viewer's own messages, which
// never count as unread.
func WithViewerID(id string) RouterOption {
	return func(r *EventRouter) { r.viewerID = id }
}

func WithViewTracker(v ViewTracker) RouterOption {
	return func(r *EventRouter) { r.view = v }
}

// WithRefetch installs the hook called when local state needs a REST refetch.
// It runs on the event goroutine and should not block.
func WithRefetch(fn func(RefetchReason)) RouterOption {
	return func(r *EventRouter) { r.refetch = fn }
}

func WithNotificationHandler(fn func(NotificationEvent)) RouterOption {
	return func(r *EventRouter) { r.onNotification = fn }
}

// WithEventTap receives every event after it has been applied to the store.
func WithEventTap(fn func(Event)) RouterOption {
	return func(r *EventRouter) { r.tap = fn }
}

// EventRouter decodes realtime events and applies them to a Store.
type EventRouter struct {
	source  EventSource
	store   *Store
	logger  *zap.Logger
	metrics *Metrics

	viewerID       string
	view           ViewTracker
	refetch        func(RefetchReason)
	onNotification func(NotificationEvent)
	tap            func(Event)

	mu sync.Mutex
	// subs is nil while uninitialized and holds the live handles otherwise.
	subs []Subscription
}

func NewEventRouter(source EventSource, store *Store, opts ...RouterOption) *EventRouter {
	r := &EventRouter{
		source: source,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "router"))
	return r
}

// Initialize subscribes one handler per routed event. Further calls are
// no-ops until Teardown.
func (r *EventRouter) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs != nil {
		r.logger.Debug("router already initialized")
		return
	}
	subs := make([]Subscription, 0, len(RoutedEvents))
	for _, name := range RoutedEvents {
		name := name
		subs = append(subs, r.source.Subscribe(name, func(payload json.RawMessage) {
			r.handle(name, payload)
		}))
	}
	r.subs = subs
}

// Initialized reports whether handlers are currently registered.
func (r *EventRouter) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs != nil
}

// Teardown removes every handler and returns to the uninitialized state.
func (r *EventRouter) Teardown() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, sub := range subs {
		r.source.Unsubscribe(sub)
	}
}

func (r *EventRouter) handle(name string, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event dropped: handler panicked", zap.String("event", name), zap.Any("panic", rec))
			r.metrics.eventDropped(name, "panic")
		}
	}()

	ev, err := DecodeEvent(name, payload)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			r.logger.Debug("unknown event ignored", zap.String("event", name))
			return
		}
		r.logger.Warn("event dropped", zap.String("event", name), zap.Error(err))
		r.metrics.eventDropped(name, "malformed")
		return
	}
	r.Apply(ev)
}

// Apply applies one decoded event to the store.
func (r *EventRouter) Apply(ev Event) {
	switch e := ev.(type) {
	case ConnectedEvent:
		r.store.SetConnection(StateConnected)
		if e.Reconnect {
			r.requestRefetch(RefetchReconnect)
		}
	case DisconnectedEvent:
		r.store.SetConnection(StateDisconnected)
	case NewMessageEvent:
		r.applyMessage(e.Message)
	case TypingEvent:
		r.store.SetTyping(e.ConversationID, e.UserID, e.Typing)
	case PresenceJoinEvent:
		r.store.PresenceJoin(e.UserID)
	case PresenceLeaveEvent:
		r.store.PresenceLeave(e.UserID)
	case PresenceSnapshotEvent:
		r.store.PresenceReplace(e.UserIDs)
	case UnreadCountEvent:
		r.store.SetTotalUnread(e.Count)
	case NotificationEvent:
		if r.onNotification != nil {
			r.onNotification(e)
		}
	}
	if r.tap != nil {
		r.tap(ev)
	}
}

func (r *EventRouter) applyMessage(m Message) {
	// A second delivery of the same message changes nothing, so unread
	// counters cannot be bumped twice.
	if !r.store.AppendMessage(m.ConversationID, m) {
		return
	}
	if !r.store.RecordActivity(m.ConversationID, m) {
		r.logger.Debug("message for unknown conversation", zap.String("conversation_id", m.ConversationID))
		r.requestRefetch(RefetchUnknownConversation)
		return
	}

	seen := false
	if r.view != nil {
		seen = r.view.MessageArrived(m)
	}
	if seen || (r.viewerID != "" && m.Sender.ID == r.viewerID) {
		return
	}
	r.store.IncrementUnread(m.ConversationID)
}

func (r *EventRouter) requestRefetch(reason RefetchReason) {
	if r.refetch == nil {
		return
	}
	r.refetch(reason)
}

package gigsync

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockViewTracker struct {
	mock.Mock
}

func (m *mockViewTracker) MessageArrived(msg Message) bool {
	args := m.Called(msg)
	return args.Bool(0)
}

type routerFixture struct {
	source   *eventDispatcher
	store    *Store
	router   *EventRouter
	refetchs []RefetchReason
}

func newRouterFixture(t *testing.T, opts ...RouterOption) *routerFixture {
	t.Helper()
	f := &routerFixture{
		source: newEventDispatcher(nil),
		store:  NewStore(nil),
	}
	opts = append([]RouterOption{
		WithViewerID("me"),
		WithRefetch(func(r RefetchReason) { f.refetchs = append(f.refetchs, r) }),
	}, opts...)
	f.router = NewEventRouter(f.source, f.store, opts...)
	f.router.Initialize()
	f.store.UpsertConversations(testConversations(0, 0))
	return f
}

func (f *routerFixture) emit(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.source.dispatch(event, raw)
}

func TestRouterInitializeIsIdempotent(t *testing.T) {
	f := newRouterFixture(t)
	for i := 0; i < 4; i++ {
		f.router.Initialize()
	}
	for _, name := range RoutedEvents {
		assert.Equal(t, 1, f.source.handlerCount(name), name)
	}

	f.emit(t, EventNewMessage, testMessage("m1", "cb", "peer-b"))
	assert.Equal(t, 1, f.store.TotalUnread(), "one delivery, one increment")
}

func TestRouterTeardownThenInitialize(t *testing.T) {
	f := newRouterFixture(t)
	require.True(t, f.router.Initialized())

	f.router.Teardown()
	assert.False(t, f.router.Initialized())
	for _, name := range RoutedEvents {
		assert.Zero(t, f.source.handlerCount(name), name)
	}
	f.router.Teardown()

	f.router.Initialize()
	f.router.Initialize()
	for _, name := range RoutedEvents {
		assert.Equal(t, 1, f.source.handlerCount(name), name)
	}
}

func TestRouterNewMessageUpdatesConversation(t *testing.T) {
	f := newRouterFixture(t)

	f.emit(t, EventNewMessage, testMessage("m1", "cb", "peer-b"))

	assert.Equal(t, []string{"cb", "ca"}, convIDs(f.store.Conversations()))
	c, _ := f.store.Conversation("cb")
	assert.Equal(t, 1, c.UnreadCount)
	assert.Equal(t, "msg m1", c.LastMessage.Content)
	assert.Len(t, f.store.Messages("cb"), 1)
}

func TestRouterDuplicateDeliveryDoesNotBumpUnread(t *testing.T) {
	f := newRouterFixture(t)
	msg := testMessage("m1", "ca", "peer-a")

	f.emit(t, EventNewMessage, msg)
	f.emit(t, EventNewMessage, msg)

	assert.Len(t, f.store.Messages("ca"), 1)
	assert.Equal(t, 1, f.store.TotalUnread())
}

func TestRouterOwnMessageIsNotUnread(t *testing.T) {
	f := newRouterFixture(t)

	f.emit(t, EventNewMessage, testMessage("m1", "ca", "me"))

	assert.Equal(t, 0, f.store.TotalUnread())
	assert.Len(t, f.store.Messages("ca"), 1)
}

func TestRouterSeenMessageIsNotUnread(t *testing.T) {
	view := &mockViewTracker{}
	f := newRouterFixture(t, WithViewTracker(view))
	seen := testMessage("m1", "ca", "peer-a")
	unseen := testMessage("m2", "cb", "peer-b")
	view.On("MessageArrived", mock.MatchedBy(func(m Message) bool { return m.ID == seen.ID })).Return(true).Once()
	view.On("MessageArrived", mock.MatchedBy(func(m Message) bool { return m.ID == unseen.ID })).Return(false).Once()

	f.emit(t, EventNewMessage, seen)
	f.emit(t, EventNewMessage, unseen)

	view.AssertExpectations(t)
	ca, _ := f.store.Conversation("ca")
	cb, _ := f.store.Conversation("cb")
	assert.Equal(t, 0, ca.UnreadCount)
	assert.Equal(t, 1, cb.UnreadCount)
	assert.Equal(t, 1, f.store.TotalUnread())
}

func TestRouterUnknownConversationRefetches(t *testing.T) {
	view := &mockViewTracker{}
	f := newRouterFixture(t, WithViewTracker(view))

	f.emit(t, EventNewMessage, testMessage("m1", "cz", "peer-z"))

	assert.Equal(t, []RefetchReason{RefetchUnknownConversation}, f.refetchs)
	assert.Len(t, f.store.Messages("cz"), 1)
	assert.Equal(t, 0, f.store.TotalUnread())
	view.AssertNotCalled(t, "MessageArrived", mock.Anything)
}

func TestRouterMalformedPayloadKeepsListeners(t *testing.T) {
	f := newRouterFixture(t)

	f.source.dispatch(EventNewMessage, json.RawMessage(`{"id":`))
	f.source.dispatch(EventUnreadCount, json.RawMessage(`{"count":-3}`))
	f.source.dispatch(EventTyping, json.RawMessage(`[]`))

	assert.Equal(t, 1, f.source.handlerCount(EventNewMessage))
	f.emit(t, EventNewMessage, testMessage("m1", "ca", "peer-a"))
	assert.Equal(t, 1, f.store.TotalUnread())
}

func TestRouterCountsDroppedEvents(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := newRouterFixture(t, WithRouterMetrics(metrics))

	f.source.dispatch(EventNewMessage, json.RawMessage(`{"id":`))
	f.source.dispatch(EventNewMessage, json.RawMessage(`{"id":"m1"}`))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.eventsDropped.WithLabelValues(EventNewMessage, "malformed")))
}

func TestRouterPresenceAndTyping(t *testing.T) {
	f := newRouterFixture(t)

	f.emit(t, EventOnlineUsers, []string{"u1", "u2"})
	f.emit(t, EventUserOffline, map[string]string{"userId": "u2"})
	f.emit(t, EventUserOnline, map[string]string{"userId": "u3"})
	assert.Equal(t, []string{"u1", "u3"}, f.store.Online())

	f.emit(t, EventTyping, map[string]string{"conversationId": "ca", "userId": "u2"})
	assert.Equal(t, []string{"u2"}, f.store.Typing("ca"))
	f.emit(t, EventStopTyping, map[string]string{"conversationId": "ca", "userId": "u2"})
	assert.Empty(t, f.store.Typing("ca"))
}

func TestRouterUnreadCountOverwrites(t *testing.T) {
	f := newRouterFixture(t)
	f.emit(t, EventNewMessage, testMessage("m1", "ca", "peer-a"))
	require.Equal(t, 1, f.store.TotalUnread())

	f.emit(t, EventUnreadCount, map[string]int{"count": 12})
	assert.Equal(t, 12, f.store.TotalUnread())
}

func TestRouterConnectionEvents(t *testing.T) {
	f := newRouterFixture(t)

	f.emit(t, EventConnect, ConnectedEvent{})
	assert.Equal(t, StateConnected, f.store.Connection())
	assert.Empty(t, f.refetchs)

	f.emit(t, EventDisconnect, DisconnectedEvent{Code: 1006})
	assert.Equal(t, StateDisconnected, f.store.Connection())

	f.emit(t, EventConnect, ConnectedEvent{Reconnect: true})
	assert.Equal(t, []RefetchReason{RefetchReconnect}, f.refetchs)
}

func TestRouterNotificationAndTap(t *testing.T) {
	var notes []NotificationEvent
	var tapped []string
	f := newRouterFixture(t,
		WithNotificationHandler(func(n NotificationEvent) { notes = append(notes, n) }),
		WithEventTap(func(ev Event) { tapped = append(tapped, ev.EventName()) }),
	)

	f.emit(t, EventNotification, map[string]string{"id": "n1", "type": "payment_released"})
	f.emit(t, EventUserOnline, map[string]string{"userId": "u1"})

	require.Len(t, notes, 1)
	assert.Equal(t, "payment_released", notes[0].Kind)
	assert.Equal(t, []string{EventNotification, EventUserOnline}, tapped)
}

func TestRouterHandlerPanicIsContained(t *testing.T) {
	f := newRouterFixture(t, WithEventTap(func(Event) { panic("tap failed") }))

	require.NotPanics(t, func() {
		f.emit(t, EventUserOnline, map[string]string{"userId": "u1"})
	})
	assert.True(t, f.store.IsOnline("u1"))
	assert.Equal(t, 1, f.source.handlerCount(EventUserOnline))
}

func convIDs(list []Conversation) []string {
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	return ids
}

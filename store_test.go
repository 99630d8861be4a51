package gigsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreNotifiesListeners(t *testing.T) {
	s := NewStore(nil)
	var changes []StoreChange
	s.OnChange(func(c StoreChange) { changes = append(changes, c) })

	s.UpsertConversations(testConversations(0))
	s.AppendMessage("ca", testMessage("m1", "ca", "peer-a"))
	s.AppendMessage("ca", testMessage("m1", "ca", "peer-a"))
	s.RecordActivity("ca", testMessage("m1", "ca", "peer-a"))
	s.RecordActivity("missing", testMessage("m2", "missing", "x"))

	assert.Equal(t, []StoreChange{
		{Kind: ChangeConversations},
		{Kind: ChangeMessages, ConversationID: "ca"},
		{Kind: ChangeConversations, ConversationID: "ca"},
	}, changes)
}

func TestStoreListenerPanicIsContained(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	s.OnChange(func(StoreChange) { panic("boom") })
	s.OnChange(func(StoreChange) { calls++ })

	require.NotPanics(t, func() { s.PresenceJoin("u1") })
	assert.Equal(t, 1, calls)
	assert.True(t, s.IsOnline("u1"))
}

func TestStoreMarkReadFlagsMessages(t *testing.T) {
	s := NewStore(nil)
	s.UpsertConversations(testConversations(2))
	s.ReplaceMessages("ca", []Message{testMessage("m1", "ca", "peer-a"), testMessage("m2", "ca", "peer-a")})

	assert.Equal(t, 2, s.MarkRead("ca"))
	assert.Equal(t, 0, s.TotalUnread())
	for _, m := range s.Messages("ca") {
		assert.True(t, m.IsRead)
	}
	c, ok := s.Conversation("ca")
	require.True(t, ok)
	assert.Equal(t, 0, c.UnreadCount)
}

func TestStoreTyping(t *testing.T) {
	s := NewStore(nil)
	notified := 0
	s.OnChange(func(c StoreChange) {
		if c.Kind == ChangeTyping {
			notified++
		}
	})

	s.SetTyping("c1", "u2", true)
	s.SetTyping("c1", "u1", true)
	s.SetTyping("c1", "u2", true)
	assert.Equal(t, []string{"u1", "u2"}, s.Typing("c1"))

	s.SetTyping("c1", "u2", false)
	s.SetTyping("c1", "u9", false)
	assert.Equal(t, []string{"u1"}, s.Typing("c1"))
	assert.Empty(t, s.Typing("c2"))
	assert.Equal(t, 3, notified)
}

func TestStoreConnectionMirror(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, StateDisconnected, s.Connection())
	s.SetConnection(StateConnected)
	assert.Equal(t, StateConnected, s.Connection())
}

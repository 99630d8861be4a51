package gigsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConversations(unread ...int) []Conversation {
	out := make([]Conversation, len(unread))
	for i, n := range unread {
		id := string(rune('a' + i))
		out[i] = Conversation{
			ID:           "c" + id,
			Participants: []UserRef{{ID: "me"}, {ID: "peer-" + id}},
			UnreadCount:  n,
		}
	}
	return out
}

func TestConversationListUpsertFromFetch(t *testing.T) {
	l := NewConversationList()
	list := testConversations(1, 0, 3)
	list = append(list, Conversation{ID: "ca", UnreadCount: 9})
	list = append(list, Conversation{ID: "cneg", UnreadCount: -4})

	l.UpsertFromFetch(list)

	assert.Equal(t, []string{"ca", "cb", "cc", "cneg"}, l.IDs())
	assert.Equal(t, 4, l.TotalUnread())
	c, ok := l.Get("cneg")
	require.True(t, ok)
	assert.Equal(t, 0, c.UnreadCount)

	l.UpsertFromFetch(testConversations(2))
	assert.Equal(t, []string{"ca"}, l.IDs())
	assert.Equal(t, 2, l.TotalUnread())
}

func TestConversationListRecordActivityMovesToFront(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(0, 0, 0, 0))

	msg := testMessage("m1", "cc", "peer-c")
	require.True(t, l.RecordActivity("cc", msg))

	assert.Equal(t, []string{"cc", "ca", "cb", "cd"}, l.IDs(), "others keep their relative order")
	c, _ := l.Get("cc")
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "msg m1", c.LastMessage.Content)
	assert.Equal(t, "peer-c", c.LastMessage.SenderID)
	assert.Equal(t, msg.CreatedAt, c.UpdatedAt)

	require.True(t, l.RecordActivity("cc", testMessage("m2", "cc", "me")))
	assert.Equal(t, []string{"cc", "ca", "cb", "cd"}, l.IDs())

	require.True(t, l.RecordActivity("cd", testMessage("m3", "cd", "peer-d")))
	assert.Equal(t, []string{"cd", "cc", "ca", "cb"}, l.IDs())
}

func TestConversationListRecordActivityThree(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(0, 0, 0))

	l.RecordActivity("ca", testMessage("m1", "ca", "peer-a"))
	assert.Equal(t, []string{"ca", "cb", "cc"}, l.IDs())

	l.RecordActivity("cc", testMessage("m2", "cc", "peer-c"))
	assert.Equal(t, []string{"cc", "ca", "cb"}, l.IDs())
}

func TestConversationListRecordActivityUnknown(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(0, 0))

	assert.False(t, l.RecordActivity("nope", testMessage("m1", "nope", "x")))
	assert.Equal(t, []string{"ca", "cb"}, l.IDs())
}

func TestConversationListRecordActivityZeroTime(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(0))

	msg := testMessage("m1", "ca", "peer-a")
	msg.CreatedAt = time.Time{}
	before := time.Now()
	require.True(t, l.RecordActivity("ca", msg))

	c, _ := l.Get("ca")
	assert.False(t, c.UpdatedAt.Before(before))
}

func TestConversationListUnreadAggregate(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(2, 1))
	require.Equal(t, 3, l.TotalUnread())

	require.True(t, l.IncrementUnread("cb"))
	assert.False(t, l.IncrementUnread("missing"))
	assert.Equal(t, 4, l.TotalUnread())

	assert.Equal(t, 2, l.MarkRead("cb"))
	assert.Equal(t, 2, l.TotalUnread())

	// Marking read twice never drives the aggregate below zero or double-subtracts.
	assert.Equal(t, 0, l.MarkRead("cb"))
	assert.Equal(t, 2, l.TotalUnread())
	assert.Equal(t, 0, l.MarkRead("missing"))
}

func TestConversationListAggregateClampsAtZero(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(3))

	l.SetTotalUnread(1)
	assert.Equal(t, 3, l.MarkRead("ca"))
	assert.Equal(t, 0, l.TotalUnread())

	l.SetTotalUnread(-5)
	assert.Equal(t, 0, l.TotalUnread())
}

func TestConversationListGetReturnsCopy(t *testing.T) {
	l := NewConversationList()
	l.UpsertFromFetch(testConversations(0))
	l.RecordActivity("ca", testMessage("m1", "ca", "peer-a"))

	c, _ := l.Get("ca")
	c.Participants[0].ID = "mutated"
	c.LastMessage.Content = "mutated"

	again, _ := l.Get("ca")
	assert.Equal(t, "me", again.Participants[0].ID)
	assert.Equal(t, "msg m1", again.LastMessage.Content)
}

func TestConversationPeer(t *testing.T) {
	c := testConversations(0)[0]
	peer, ok := c.Peer("me")
	require.True(t, ok)
	assert.Equal(t, "peer-a", peer.ID)

	lonely := Conversation{ID: "x", Participants: []UserRef{{ID: "me"}}}
	_, ok = lonely.Peer("me")
	assert.False(t, ok)
}

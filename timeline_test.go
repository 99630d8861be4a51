package gigsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(id, conv, sender string) Message {
	return Message{
		ID:             id,
		ConversationID: conv,
		Sender:         UserRef{ID: sender},
		Content:        "msg " + id,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func messageIDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestTimelineAppendDeduplicates(t *testing.T) {
	tl := NewTimeline()

	require.True(t, tl.Append("c1", testMessage("m1", "c1", "u2")))
	require.True(t, tl.Append("c1", testMessage("m2", "c1", "u2")))
	assert.False(t, tl.Append("c1", testMessage("m1", "c1", "u2")), "same id must not be appended twice")

	assert.Equal(t, []string{"m1", "m2"}, messageIDs(tl.Messages("c1")))
	assert.Equal(t, 2, tl.Len("c1"))
	assert.True(t, tl.Has("c1", "m2"))
	assert.False(t, tl.Has("c2", "m2"))
}

func TestTimelineAppendKeepsArrivalOrder(t *testing.T) {
	tl := NewTimeline()
	for _, id := range []string{"a", "b", "c", "d"} {
		tl.Append("c1", testMessage(id, "c1", "u2"))
	}
	tl.Append("c1", testMessage("b", "c1", "u2"))
	tl.Append("c1", testMessage("e", "c1", "u2"))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, messageIDs(tl.Messages("c1")))
}

func TestTimelineConversationsAreIndependent(t *testing.T) {
	tl := NewTimeline()
	require.True(t, tl.Append("c1", testMessage("m1", "c1", "u2")))
	require.True(t, tl.Append("c2", testMessage("m1", "c2", "u2")))

	assert.Len(t, tl.Messages("c1"), 1)
	assert.Len(t, tl.Messages("c2"), 1)
	assert.Empty(t, tl.Messages("c3"))
}

func TestTimelineReplaceAll(t *testing.T) {
	tl := NewTimeline()
	tl.Append("c1", testMessage("old", "c1", "u2"))

	tl.ReplaceAll("c1", []Message{
		testMessage("h1", "c1", "u2"),
		testMessage("h2", "c1", "u1"),
		testMessage("h1", "c1", "u2"),
	})
	assert.Equal(t, []string{"h1", "h2"}, messageIDs(tl.Messages("c1")))
	assert.False(t, tl.Has("c1", "old"))

	// The dedup index follows the replaced history.
	assert.False(t, tl.Append("c1", testMessage("h2", "c1", "u1")))
	assert.True(t, tl.Append("c1", testMessage("old", "c1", "u2")))
}

func TestTimelineRestThenRealtime(t *testing.T) {
	tl := NewTimeline()
	m1, m2, m3 := testMessage("m1", "c1", "u2"), testMessage("m2", "c1", "u2"), testMessage("m3", "c1", "u2")

	tl.ReplaceAll("c1", []Message{m1, m2})
	tl.Append("c1", m2)
	tl.Append("c1", m3)

	assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(tl.Messages("c1")))
}

func TestTimelineMarkAllRead(t *testing.T) {
	tl := NewTimeline()
	read := testMessage("m1", "c1", "u2")
	read.IsRead = true
	tl.Append("c1", read)
	tl.Append("c1", testMessage("m2", "c1", "u2"))
	tl.Append("c1", testMessage("m3", "c1", "u2"))

	assert.Equal(t, 2, tl.MarkAllRead("c1"))
	assert.Equal(t, 0, tl.MarkAllRead("c1"))
	for _, m := range tl.Messages("c1") {
		assert.True(t, m.IsRead, m.ID)
	}
	assert.Equal(t, 0, tl.MarkAllRead("missing"))
}

func TestTimelineMessagesReturnsCopy(t *testing.T) {
	tl := NewTimeline()
	tl.Append("c1", testMessage("m1", "c1", "u2"))

	msgs := tl.Messages("c1")
	msgs[0].Content = "changed"

	assert.Equal(t, "msg m1", tl.Messages("c1")[0].Content)
}

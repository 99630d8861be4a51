package gigsync

// Timeline holds one ordered, id-deduplicated message list per conversation.
// It is not goroutine-safe on its own; Store serializes access.
type Timeline struct {
	messages map[string][]Message
	seen     map[string]map[string]struct{}
}

// NewTimeline creates an empty timeline set.
func NewTimeline() *Timeline {
	return &Timeline{
		messages: make(map[string][]Message),
		seen:     make(map[string]map[string]struct{}),
	}
}

// Append adds msg at the end of the conversation's list unless a message with
// the same id is already there. It reports whether msg was added.
func (t *Timeline) Append(conversationID string, msg Message) bool {
	ids := t.seen[conversationID]
	if ids == nil {
		ids = make(map[string]struct{})
		t.seen[conversationID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		return false
	}
	ids[msg.ID] = struct{}{}
	t.messages[conversationID] = append(t.messages[conversationID], msg)
	return true
}

// ReplaceAll swaps in a fetched history, keeping the server's order. Repeated
// ids inside msgs keep their first occurrence.
func (t *Timeline) ReplaceAll(conversationID string, msgs []Message) {
	ids := make(map[string]struct{}, len(msgs))
	list := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		list = append(list, m)
	}
	t.messages[conversationID] = list
	t.seen[conversationID] = ids
}

// MarkAllRead flags every message in the conversation as read. It returns
// the number of messages that changed.
func (t *Timeline) MarkAllRead(conversationID string) int {
	list := t.messages[conversationID]
	changed := 0
	for i := range list {
		if !list[i].IsRead {
			list[i].IsRead = true
			changed++
		}
	}
	return changed
}

// Messages returns a copy of the conversation's list.
func (t *Timeline) Messages(conversationID string) []Message {
	list := t.messages[conversationID]
	out := make([]Message, len(list))
	copy(out, list)
	return out
}

// Len returns the number of messages held for the conversation.
func (t *Timeline) Len(conversationID string) int {
	return len(t.messages[conversationID])
}

// Has reports whether a message id is present in the conversation.
func (t *Timeline) Has(conversationID, messageID string) bool {
	_, ok := t.seen[conversationID][messageID]
	return ok
}

package gigsync

import "time"

// ConversationList keeps conversations ordered by most recent activity and
// tracks the viewer's aggregate unread counter. Order is only ever changed by
// moving one entry to the front; the list is never re-sorted.
//
// Not goroutine-safe on its own; Store serializes access.
type ConversationList struct {
	order       []string
	byID        map[string]*Conversation
	totalUnread int
}

func NewConversationList() *ConversationList {
	return &ConversationList{byID: make(map[string]*Conversation)}
}

// UpsertFromFetch replaces the whole list with a fetched one, in the given
// order, and recomputes the aggregate unread counter from it.
func (l *ConversationList) UpsertFromFetch(list []Conversation) {
	l.order = make([]string, 0, len(list))
	l.byID = make(map[string]*Conversation, len(list))
	l.totalUnread = 0
	for i := range list {
		c := list[i]
		if _, dup := l.byID[c.ID]; dup {
			continue
		}
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		l.order = append(l.order, c.ID)
		l.byID[c.ID] = &c
		l.totalUnread += c.UnreadCount
	}
}

// RecordActivity stores msg as the conversation's last message and moves the
// conversation to the front. It returns false, changing nothing, when the
// conversation is not in the local list.
func (l *ConversationList) RecordActivity(conversationID string, msg Message) bool {
	c, ok := l.byID[conversationID]
	if !ok {
		return false
	}
	c.LastMessage = msg.summary()
	c.UpdatedAt = msg.CreatedAt
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	l.moveToFront(conversationID)
	return true
}

func (l *ConversationList) moveToFront(conversationID string) {
	idx := -1
	for i, id := range l.order {
		if id == conversationID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}
	copy(l.order[1:idx+1], l.order[:idx])
	l.order[0] = conversationID
}

// IncrementUnread adds one unread message to the conversation and the aggregate.
func (l *ConversationList) IncrementUnread(conversationID string) bool {
	c, ok := l.byID[conversationID]
	if !ok {
		return false
	}
	c.UnreadCount++
	l.totalUnread++
	return true
}

// MarkRead zeroes the conversation's unread count and subtracts the prior
// value from the aggregate, never going below zero. It returns the prior count.
func (l *ConversationList) MarkRead(conversationID string) int {
	c, ok := l.byID[conversationID]
	if !ok {
		return 0
	}
	prior := c.UnreadCount
	c.UnreadCount = 0
	l.totalUnread -= prior
	if l.totalUnread < 0 {
		l.totalUnread = 0
	}
	return prior
}

// SetTotalUnread overwrites the aggregate with a server-pushed value. The
// per-conversation counts are left alone until the next fetch.
func (l *ConversationList) SetTotalUnread(n int) {
	if n < 0 {
		n = 0
	}
	l.totalUnread = n
}

func (l *ConversationList) TotalUnread() int {
	return l.totalUnread
}

// Get returns a copy of one conversation.
func (l *ConversationList) Get(conversationID string) (Conversation, bool) {
	c, ok := l.byID[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(c), true
}

func (l *ConversationList) Has(conversationID string) bool {
	_, ok := l.byID[conversationID]
	return ok
}

// List returns copies in display order.
func (l *ConversationList) List() []Conversation {
	out := make([]Conversation, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, copyConversation(l.byID[id]))
	}
	return out
}

// IDs returns conversation ids in display order.
func (l *ConversationList) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	out.Participants = append([]UserRef(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}

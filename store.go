package gigsync

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ChangeKind says which part of the Store a mutation touched.
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangePresence      ChangeKind = "presence"
	ChangeTyping        ChangeKind = "typing"
	ChangeUnread        ChangeKind = "unread"
	ChangeConnection    ChangeKind = "connection"
)

// StoreChange describes one applied mutation.
type StoreChange struct {
	Kind           ChangeKind
	ConversationID string
}

// ChangeListener is notified after a mutation has been applied.
type ChangeListener func(StoreChange)

// Store is the process-wide chat state: conversations, timelines, presence,
// typing sets, the unread aggregate and a mirror of the connection state.
// All mutation goes through its methods; readers get copies.
type Store struct {
	mu            sync.RWMutex
	conversations *ConversationList
	timeline      *Timeline
	presence      *PresenceSet
	typing        map[string]map[string]struct{}
	connection    ConnState

	listenersMu sync.RWMutex
	listeners   []ChangeListener
	logger      *zap.Logger
}

// NewStore creates an empty store. A nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		conversations: NewConversationList(),
		timeline:      NewTimeline(),
		presence:      NewPresenceSet(),
		typing:        make(map[string]map[string]struct{}),
		connection:    StateDisconnected,
		logger:        logger,
	}
}

// OnChange registers a listener for applied mutations.
func (s *Store) OnChange(l ChangeListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

func (s *Store) notify(kind ChangeKind, conversationID string) {
	s.listenersMu.RLock()
	listeners := append([]ChangeListener{}, s.listeners...)
	s.listenersMu.RUnlock()
	change := StoreChange{Kind: kind, ConversationID: conversationID}
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("store listener panicked", zap.Any("panic", r), zap.String("kind", string(kind)))
				}
			}()
			l(change)
		}()
	}
}

// ── Conversations ────────────────────────────────────────

func (s *Store) UpsertConversations(list []Conversation) {
	s.mu.Lock()
	s.conversations.UpsertFromFetch(list)
	s.mu.Unlock()
	s.notify(ChangeConversations, "")
}

func (s *Store) RecordActivity(conversationID string, msg Message) bool {
	s.mu.Lock()
	ok := s.conversations.RecordActivity(conversationID, msg)
	s.mu.Unlock()
	if ok {
		s.notify(ChangeConversations, conversationID)
	}
	return ok
}

func (s *Store) IncrementUnread(conversationID string) bool {
	s.mu.Lock()
	ok := s.conversations.IncrementUnread(conversationID)
	s.mu.Unlock()
	if ok {
		s.notify(ChangeUnread, conversationID)
	}
	return ok
}

// MarkRead zeroes the conversation's unread count, lowers the aggregate and
// flags its loaded messages as read. It returns the prior unread count.
func (s *Store) MarkRead(conversationID string) int {
	s.mu.Lock()
	prior := s.conversations.MarkRead(conversationID)
	s.timeline.MarkAllRead(conversationID)
	s.mu.Unlock()
	s.notify(ChangeUnread, conversationID)
	return prior
}

func (s *Store) SetTotalUnread(n int) {
	s.mu.Lock()
	s.conversations.SetTotalUnread(n)
	s.mu.Unlock()
	s.notify(ChangeUnread, "")
}

func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.TotalUnread()
}

func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.List()
}

func (s *Store) Conversation(conversationID string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.Get(conversationID)
}

func (s *Store) HasConversation(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations.Has(conversationID)
}

// ── Messages ─────────────────────────────────────────────

func (s *Store) AppendMessage(conversationID string, msg Message) bool {
	s.mu.Lock()
	added := s.timeline.Append(conversationID, msg)
	s.mu.Unlock()
	if added {
		s.notify(ChangeMessages, conversationID)
	} else {
		s.logger.Debug("duplicate message ignored",
			zap.String("conversation_id", conversationID), zap.String("message_id", msg.ID))
	}
	return added
}

func (s *Store) ReplaceMessages(conversationID string, msgs []Message) {
	s.mu.Lock()
	s.timeline.ReplaceAll(conversationID, msgs)
	s.mu.Unlock()
	s.notify(ChangeMessages, conversationID)
}

func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeline.Messages(conversationID)
}

// ── Presence ─────────────────────────────────────────────

func (s *Store) PresenceJoin(userID string) {
	s.mu.Lock()
	changed := s.presence.Join(userID)
	s.mu.Unlock()
	if changed {
		s.notify(ChangePresence, "")
	}
}

func (s *Store) PresenceLeave(userID string) {
	s.mu.Lock()
	changed := s.presence.Leave(userID)
	s.mu.Unlock()
	if changed {
		s.notify(ChangePresence, "")
	}
}

func (s *Store) PresenceReplace(userIDs []string) {
	s.mu.Lock()
	s.presence.Replace(userIDs)
	s.mu.Unlock()
	s.notify(ChangePresence, "")
}

func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence.IsOnline(userID)
}

func (s *Store) Online() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence.Online()
}

// ── Typing ───────────────────────────────────────────────

// SetTyping adds or removes userID from the conversation's typing set. Entries
// only clear when the typing user's client sends stopTyping.
func (s *Store) SetTyping(conversationID, userID string, typing bool) {
	s.mu.Lock()
	users := s.typing[conversationID]
	changed := false
	if typing {
		if users == nil {
			users = make(map[string]struct{})
			s.typing[conversationID] = users
		}
		if _, ok := users[userID]; !ok {
			users[userID] = struct{}{}
			changed = true
		}
	} else if _, ok := users[userID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typing, conversationID)
		}
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify(ChangeTyping, conversationID)
	}
}

// Typing returns the sorted ids of users typing in the conversation.
func (s *Store) Typing(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := s.typing[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ── Connection mirror ────────────────────────────────────

func (s *Store) SetConnection(state ConnState) {
	s.mu.Lock()
	changed := s.connection != state
	s.connection = state
	s.mu.Unlock()
	if changed {
		s.notify(ChangeConnection, "")
	}
}

// Connection returns the last connection state the router observed.
func (s *Store) Connection() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection
}

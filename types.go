package gigsync

import (
	"encoding/json"
	"errors"
	"time"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotConnected is returned by Emit when no realtime connection is open.
	ErrNotConnected = errors.New("gigsync: not connected")
	// ErrAuthRejected means the realtime server refused the token.
	ErrAuthRejected = errors.New("gigsync: realtime authentication rejected")
	// ErrConnectInProgress is returned by Connect while another connect or
	// reconnect loop owns the connection.
	ErrConnectInProgress = errors.New("gigsync: connect already in progress")
	// ErrReconnectExhausted means every connection attempt failed.
	ErrReconnectExhausted = errors.New("gigsync: reconnect attempts exhausted")
	// ErrUnknownEvent is returned by DecodeEvent for event names it does not model.
	ErrUnknownEvent = errors.New("gigsync: unknown realtime event")
	// ErrUnauthorized wraps REST responses with status 401 or 403.
	ErrUnauthorized = errors.New("gigsync: unauthorized")
)

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *APIError) Unwrap() error {
	if e.Status == 401 || e.Status == 403 {
		return ErrUnauthorized
	}
	return nil
}

// ============================================================================
// Chat Types
// ============================================================================

// UserRef identifies a platform user.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LastMessage is the summary shown next to a conversation in the list.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a 1:1 thread, optionally scoped to a job or proposal.
type Conversation struct {
	ID           string       `json:"id"`
	Participants []UserRef    `json:"participants"`
	JobID        string       `json:"jobId,omitempty"`
	ProposalID   string       `json:"proposalId,omitempty"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Peer returns the participant that is not viewerID.
func (c *Conversation) Peer(viewerID string) (UserRef, bool) {
	for _, p := range c.Participants {
		if p.ID != viewerID {
			return p, true
		}
	}
	return UserRef{}, false
}

// Message is immutable once created, except for IsRead.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         UserRef   `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
}

func (m *Message) summary() *LastMessage {
	return &LastMessage{Content: m.Content, SenderID: m.Sender.ID, CreatedAt: m.CreatedAt}
}

// ============================================================================
// REST Types
// ============================================================================

// APIResult is the generic REST response envelope.
type APIResult struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *APIResult) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// PaginationOptions limits a history fetch.
type PaginationOptions struct {
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
}

// CreateConversationOptions requests a 1:1 conversation with a peer.
type CreateConversationOptions struct {
	PeerID     string `json:"peerId"`
	JobID      string `json:"jobId,omitempty"`
	ProposalID string `json:"proposalId,omitempty"`
}

// UnreadCountData is the payload of the unread-count endpoint.
type UnreadCountData struct {
	Count int `json:"count"`
}

// Package gigsync keeps a marketplace client's chat state in sync with the
// platform's REST backend and realtime websocket.
//
// Example:
//
//	client := gigsync.NewClient(token, gigsync.WithBaseURL("https://api.example.com"))
//
//	// REST
//	convs, _ := client.Conversations.List(ctx)
//	client.Messages.Send(ctx, convs[0].ID, "Hello!")
//
//	// Realtime session (socket + store + router)
//	session := gigsync.NewSession(client, "user-1", nil)
//	session.Start(ctx)
//	defer session.Stop()
package gigsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the marketplace REST backend with a bearer token.
type Client struct {
	tokenMu    sync.RWMutex
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	Conversations *ConversationsClient
	Messages      *MessagesClient
	Unread        *UnreadClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new client. token may be empty for unauthenticated use.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Conversations = &ConversationsClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Unread = &UnreadClient{c: c}
	return c
}

// SetToken replaces the auth token used for subsequent requests. It is safe
// to call while requests are in flight.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the current auth token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Logger returns the logger the client was built with.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) (*APIResult, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", method), zap.String("path", path),
			zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result, decodeErr := decodeJSON[APIResult](data)
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "HTTP_" + fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		c.logger.Warn("request rejected",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.String("code", apiErr.Code),
			zap.String("request_id", requestID))
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if !result.OK {
		if result.Error != nil {
			result.Error.Status = resp.StatusCode
			return nil, result.Error
		}
		return nil, &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: "request was not ok"}
	}
	return result, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func decodeData[T any](result *APIResult) (T, error) {
	var v T
	if err := result.Decode(&v); err != nil {
		return v, fmt.Errorf("failed to decode data: %w", err)
	}
	return v, nil
}

// ============================================================================
// Sub-Clients
// ============================================================================

// ConversationsClient handles the conversation list and read state.
type ConversationsClient struct{ c *Client }

// List returns the viewer's conversations, most recent activity first.
func (cv *ConversationsClient) List(ctx context.Context) ([]Conversation, error) {
	result, err := cv.c.doRequest(ctx, "GET", "/api/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Conversation](result)
}

// Create returns the conversation with peerID in the given context, creating it if needed.
func (cv *ConversationsClient) Create(ctx context.Context, opts *CreateConversationOptions) (*Conversation, error) {
	result, err := cv.c.doRequest(ctx, "POST", "/api/conversations", opts, nil)
	if err != nil {
		return nil, err
	}
	conv, err := decodeData[Conversation](result)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (cv *ConversationsClient) MarkRead(ctx context.Context, conversationID string) error {
	_, err := cv.c.doRequest(ctx, "PUT", "/api/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
	return err
}

// MessagesClient handles message history and sending.
type MessagesClient struct{ c *Client }

// History returns messages in chronological ascending order.
func (m *MessagesClient) History(ctx context.Context, conversationID string, opts *PaginationOptions) ([]Message, error) {
	var query map[string]string
	if opts != nil {
		query = map[string]string{}
		if opts.Limit > 0 {
			query["limit"] = fmt.Sprintf("%d", opts.Limit)
		}
		if opts.Before != "" {
			query["before"] = opts.Before
		}
	}
	result, err := m.c.doRequest(ctx, "GET", "/api/conversations/"+url.PathEscape(conversationID)+"/messages", nil, query)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Message](result)
}

// Send posts a message and returns it as stored by the server.
func (m *MessagesClient) Send(ctx context.Context, conversationID, content string) (*Message, error) {
	payload := map[string]string{"content": content}
	result, err := m.c.doRequest(ctx, "POST", "/api/conversations/"+url.PathEscape(conversationID)+"/messages", payload, nil)
	if err != nil {
		return nil, err
	}
	msg, err := decodeData[Message](result)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	return &msg, nil
}

// UnreadClient reads the viewer's global unread counter.
type UnreadClient struct{ c *Client }

func (u *UnreadClient) Count(ctx context.Context) (int, error) {
	result, err := u.c.doRequest(ctx, "GET", "/api/messages/unread-count", nil, nil)
	if err != nil {
		return 0, err
	}
	data, err := decodeData[UnreadCountData](result)
	if err != nil {
		return 0, err
	}
	return data.Count, nil
}

// WSURL returns the websocket URL derived from the REST base URL.
func (c *Client) WSURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

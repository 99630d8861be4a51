package gigsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHistoryLimit is how many messages a conversation's history load asks for.
const DefaultHistoryLimit = 50

// SessionOptions configures a Session.
type SessionOptions struct {
	Realtime *RealtimeConfig
	Metrics  *Metrics
	// Scroller executes viewport moves decided by the view state.
	Scroller       func(conversationID string, action ScrollAction)
	OnNotification func(NotificationEvent)
	// OnEvent sees every realtime event after the store has applied it.
	OnEvent        func(Event)
	HistoryLimit   int
	RefetchTimeout time.Duration
}

// Session is one signed-in viewer's sync component: REST client, realtime
// connection, event router, store and the open conversation's view state.
type Session struct {
	client   *Client
	viewerID string
	conn     *ConnectionManager
	store    *Store
	router   *EventRouter
	logger   *zap.Logger

	scroller       func(string, ScrollAction)
	historyLimit   int
	refetchTimeout time.Duration

	viewMu sync.Mutex
	view   ViewState
	jobs   map[string]struct{}

	refetchMu      sync.Mutex
	refetching     bool
	pendingRefetch bool
	pendingRejoin  bool
}

// NewSession builds a session for viewerID on top of client. Nothing is
// connected until Start.
func NewSession(client *Client, viewerID string, opts *SessionOptions) *Session {
	if opts == nil {
		opts = &SessionOptions{}
	}
	logger := client.Logger().With(zap.String("viewer_id", viewerID))

	rtCfg := RealtimeConfig{}
	if opts.Realtime != nil {
		rtCfg = *opts.Realtime
	}
	if rtCfg.Logger == nil {
		rtCfg.Logger = logger
	}
	if rtCfg.Metrics == nil {
		rtCfg.Metrics = opts.Metrics
	}

	s := &Session{
		client:         client,
		viewerID:       viewerID,
		conn:           client.Realtime(&rtCfg),
		store:          NewStore(logger),
		logger:         logger.With(zap.String("component", "session")),
		scroller:       opts.Scroller,
		historyLimit:   opts.HistoryLimit,
		refetchTimeout: opts.RefetchTimeout,
		jobs:           make(map[string]struct{}),
	}
	if s.historyLimit == 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.refetchTimeout == 0 {
		s.refetchTimeout = 15 * time.Second
	}

	routerOpts := []RouterOption{
		WithRouterLogger(logger),
		WithRouterMetrics(opts.Metrics),
		WithViewerID(viewerID),
		WithViewTracker(s),
		WithRefetch(s.onRefetch),
	}
	if opts.OnNotification != nil {
		routerOpts = append(routerOpts, WithNotificationHandler(opts.OnNotification))
	}
	if opts.OnEvent != nil {
		routerOpts = append(routerOpts, WithEventTap(opts.OnEvent))
	}
	s.router = NewEventRouter(s.conn, s.store, routerOpts...)
	return s
}

func (s *Session) Store() *Store                  { return s.store }
func (s *Session) Connection() *ConnectionManager { return s.conn }
func (s *Session) Router() *EventRouter           { return s.router }

// View returns a copy of the open conversation's view state.
func (s *Session) View() ViewState {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.view
}

// Start attaches the router, connects the socket and loads the conversation
// list followed by the unread counter. A realtime failure other than a
// rejected token does not stop the REST load; it is returned afterwards.
func (s *Session) Start(ctx context.Context) error {
	s.router.Initialize()

	connErr := s.conn.Connect(ctx, s.client.Token())
	if connErr != nil {
		s.logger.Warn("realtime unavailable", zap.Error(connErr))
		if errors.Is(connErr, ErrAuthRejected) {
			return connErr
		}
	}

	if err := s.RefreshConversations(ctx); err != nil {
		return err
	}
	if err := s.RefreshUnread(ctx); err != nil {
		return err
	}
	return connErr
}

// Reauthenticate swaps in a fresh token after the old one was rejected or
// expired, reopens the socket with it and reloads the REST state. When the
// socket had connected before, the reconnect refetch also rejoins rooms.
func (s *Session) Reauthenticate(ctx context.Context, token string) error {
	s.client.SetToken(token)
	s.conn.Disconnect()
	connErr := s.conn.Connect(ctx, token)
	if connErr != nil {
		s.logger.Warn("realtime unavailable after reauthentication", zap.Error(connErr))
		if errors.Is(connErr, ErrAuthRejected) {
			return connErr
		}
	}
	if err := s.RefreshConversations(ctx); err != nil {
		return err
	}
	if err := s.RefreshUnread(ctx); err != nil {
		return err
	}
	return connErr
}

// Stop detaches the router and closes the socket.
func (s *Session) Stop() {
	s.conn.Disconnect()
	s.router.Teardown()
}

func (s *Session) RefreshConversations(ctx context.Context) error {
	list, err := s.client.Conversations.List(ctx)
	if err != nil {
		return fmt.Errorf("fetch conversations: %w", err)
	}
	s.store.UpsertConversations(list)
	return nil
}

func (s *Session) RefreshUnread(ctx context.Context) error {
	n, err := s.client.Unread.Count(ctx)
	if err != nil {
		return fmt.Errorf("fetch unread count: %w", err)
	}
	s.store.SetTotalUnread(n)
	return nil
}

// onRefetch runs on the event goroutine, so the REST work is moved off it.
// A request that arrives while a refetch is running queues one more pass.
// A queued reconnect keeps its rejoin even when merged with other reasons.
func (s *Session) onRefetch(reason RefetchReason) {
	rejoin := reason == RefetchReconnect
	s.refetchMu.Lock()
	if s.refetching {
		s.pendingRefetch = true
		s.pendingRejoin = s.pendingRejoin || rejoin
		s.refetchMu.Unlock()
		return
	}
	s.refetching = true
	s.refetchMu.Unlock()

	go s.refetchLoop(reason, rejoin)
}

func (s *Session) refetchLoop(reason RefetchReason, rejoin bool) {
	for {
		s.refetchPass(reason, rejoin)

		s.refetchMu.Lock()
		if !s.pendingRefetch {
			s.refetching = false
			s.refetchMu.Unlock()
			return
		}
		rejoin = s.pendingRejoin
		s.pendingRefetch = false
		s.pendingRejoin = false
		s.refetchMu.Unlock()
		reason = "queued"
		if rejoin {
			reason = RefetchReconnect
		}
	}
}

func (s *Session) refetchPass(reason RefetchReason, rejoin bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refetchTimeout)
	defer cancel()

	s.logger.Info("refetching conversations", zap.String("reason", string(reason)))
	if err := s.RefreshConversations(ctx); err != nil {
		s.logger.Warn("refetch failed", zap.Error(err))
	}
	if rejoin {
		s.rejoinRooms(ctx)
	}
}

// rejoinRooms restores server-side room membership after a reconnect and
// reloads the open conversation's history.
func (s *Session) rejoinRooms(ctx context.Context) {
	s.viewMu.Lock()
	open := s.view.ConversationID
	jobs := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		jobs = append(jobs, id)
	}
	s.viewMu.Unlock()

	for _, id := range jobs {
		s.emitQuiet(ctx, EmitJoinJobRoom, map[string]string{"jobId": id})
	}
	if open == "" {
		return
	}
	s.emitQuiet(ctx, EmitJoinConversation, map[string]string{"conversationId": open})
	msgs, err := s.client.Messages.History(ctx, open, &PaginationOptions{Limit: s.historyLimit})
	if err != nil {
		s.logger.Warn("history reload failed", zap.String("conversation_id", open), zap.Error(err))
		return
	}
	s.store.ReplaceMessages(open, msgs)
}

// MessageArrived implements ViewTracker.
func (s *Session) MessageArrived(msg Message) bool {
	s.viewMu.Lock()
	seen := s.view.Sees(msg.ConversationID)
	action := s.view.MessageArrived(msg.ConversationID)
	s.viewMu.Unlock()

	s.scroll(msg.ConversationID, action)
	if seen && msg.Sender.ID != s.viewerID {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.emitQuiet(ctx, EmitMarkAsRead, map[string]string{"conversationId": msg.ConversationID})
		}()
	}
	return seen
}

// OpenConversation switches the view to conversationID, loads its history and
// marks it read. A conversation missing from the local list triggers a list
// refetch. A history response that arrives after the viewer moved on
// is still applied to the store, but it neither scrolls nor marks read.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	s.viewMu.Lock()
	prev := s.view.ConversationID
	s.view.Switch(conversationID)
	s.viewMu.Unlock()

	if prev != "" && prev != conversationID {
		s.emitQuiet(ctx, EmitLeaveConversation, map[string]string{"conversationId": prev})
	}
	s.emitQuiet(ctx, EmitJoinConversation, map[string]string{"conversationId": conversationID})

	msgs, err := s.client.Messages.History(ctx, conversationID, &PaginationOptions{Limit: s.historyLimit})
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	s.store.ReplaceMessages(conversationID, msgs)
	if !s.store.HasConversation(conversationID) {
		s.onRefetch(RefetchUnknownConversation)
	}

	s.viewMu.Lock()
	stillOpen := s.view.IsOpen(conversationID)
	action := s.view.HistoryLoaded(conversationID)
	s.viewMu.Unlock()
	s.scroll(conversationID, action)

	if !stillOpen {
		s.logger.Debug("history applied for a conversation no longer open", zap.String("conversation_id", conversationID))
		return nil
	}
	return s.MarkRead(ctx, conversationID)
}

// CloseConversation leaves the open conversation's room and clears the view.
func (s *Session) CloseConversation(ctx context.Context) {
	s.viewMu.Lock()
	prev := s.view.ConversationID
	s.view.Switch("")
	s.viewMu.Unlock()
	if prev != "" {
		s.emitQuiet(ctx, EmitLeaveConversation, map[string]string{"conversationId": prev})
	}
}

// MarkRead clears the conversation's unread state locally, then tells the
// backend and the realtime server.
func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	prior := s.store.MarkRead(conversationID)
	s.logger.Debug("conversation marked read", zap.String("conversation_id", conversationID), zap.Int("cleared", prior))

	if err := s.client.Conversations.MarkRead(ctx, conversationID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	s.emitQuiet(ctx, EmitMarkAsRead, map[string]string{"conversationId": conversationID})
	return nil
}

// Scrolled feeds a viewport position into the view state. Catching up with a
// pending indicator by scrolling marks the conversation read.
func (s *Session) Scrolled(ctx context.Context, distanceFromBottom float64) error {
	s.viewMu.Lock()
	caughtUp := s.view.Scrolled(distanceFromBottom)
	id := s.view.ConversationID
	s.viewMu.Unlock()
	if caughtUp && id != "" {
		return s.MarkRead(ctx, id)
	}
	return nil
}

// ClickIndicator handles a click on the new-message indicator.
func (s *Session) ClickIndicator(ctx context.Context) error {
	s.viewMu.Lock()
	action := s.view.IndicatorClicked()
	id := s.view.ConversationID
	s.viewMu.Unlock()
	s.scroll(id, action)
	if id == "" {
		return nil
	}
	return s.MarkRead(ctx, id)
}

// SendMessage posts content over REST and applies the stored message
// locally. The realtime echo of the same message is deduplicated. Failures
// are returned and not retried.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is empty")
	}
	msg, err := s.client.Messages.Send(ctx, conversationID, content)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if s.store.AppendMessage(conversationID, *msg) {
		if !s.store.RecordActivity(conversationID, *msg) {
			s.onRefetch(RefetchUnknownConversation)
		}
	}

	s.viewMu.Lock()
	action := s.view.MessageSent(conversationID)
	s.viewMu.Unlock()
	s.scroll(conversationID, action)
	return msg, nil
}

// SetTyping tells the peer the viewer started or stopped typing.
func (s *Session) SetTyping(ctx context.Context, conversationID string, typing bool) error {
	event := EmitStopTyping
	if typing {
		event = EmitTyping
	}
	return s.conn.Emit(ctx, event, map[string]string{"conversationId": conversationID})
}

// WatchJob subscribes to status updates for a job. The room is rejoined after
// a reconnect.
func (s *Session) WatchJob(ctx context.Context, jobID string) error {
	s.viewMu.Lock()
	s.jobs[jobID] = struct{}{}
	s.viewMu.Unlock()
	return s.conn.Emit(ctx, EmitJoinJobRoom, map[string]string{"jobId": jobID})
}

func (s *Session) UnwatchJob(ctx context.Context, jobID string) error {
	s.viewMu.Lock()
	delete(s.jobs, jobID)
	s.viewMu.Unlock()
	return s.conn.Emit(ctx, EmitLeaveJobRoom, map[string]string{"jobId": jobID})
}

// StartConversation gets or creates the conversation with peerID and reloads
// the list so it shows up locally.
func (s *Session) StartConversation(ctx context.Context, peerID, jobID string) (*Conversation, error) {
	conv, err := s.client.Conversations.Create(ctx, &CreateConversationOptions{PeerID: peerID, JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	if err := s.RefreshConversations(ctx); err != nil {
		return conv, err
	}
	return conv, nil
}

func (s *Session) scroll(conversationID string, action ScrollAction) {
	if action == ScrollNone || s.scroller == nil {
		return
	}
	s.scroller(conversationID, action)
}

// emitQuiet sends a fire-and-forget event. Emit already logs drops.
func (s *Session) emitQuiet(ctx context.Context, event string, payload interface{}) {
	if err := s.conn.Emit(ctx, event, payload); err != nil {
		s.logger.Debug("emit skipped", zap.String("event", event), zap.Error(err))
	}
}

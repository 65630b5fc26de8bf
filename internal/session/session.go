// Package session implements the per-client synchronization session: it
// subscribes to the user's summary-list feed and to the currently open
// conversation's log feed, turns snapshots into incremental events, and
// drives seen transitions. Exactly one log subscription is live per
// session; switching conversations cancels the previous one.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/chatlog"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
)

// Event types delivered to the client.
const (
	EventChats    = "chats"    // full re-sorted summary list
	EventMessages = "messages" // delta of new messages for the open conversation
)

// ErrNoOpenConversation is returned by Send when no conversation is open.
var ErrNoOpenConversation = errors.New("session: no open conversation")

// Event is one update pushed to the connected client.
type Event struct {
	Type           string                   `json:"type"`
	Chats          []models.RenderedSummary `json:"chats,omitempty"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	Messages       []models.Message         `json:"messages,omitempty"`
	// ScrollToLatest is set when the delta contains the session user's own
	// message; the client keeps scroll position otherwise.
	ScrollToLatest bool `json:"scroll_to_latest,omitempty"`
}

// Session is one connected client's sync state.
type Session struct {
	user   *models.User
	sender *Sender
	logger zerolog.Logger

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu            sync.Mutex
	active        uuid.UUID
	cancelLog     func()
	lastDelivered string // newest message id already emitted for active

	cancelChats func()
	closeOnce   sync.Once
}

// New creates a session for the given user.
func New(user *models.User, sender *Sender, logger zerolog.Logger) *Session {
	return &Session{
		user:   user,
		sender: sender,
		logger: logger.With().Str("user", user.ID.String()).Logger(),
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}
}

// Events returns the channel of updates for the client. Closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start subscribes the user's summary feed. The first event carries the
// current list.
func (s *Session) Start(ctx context.Context) {
	metrics.SyncSessions.Inc()

	ch, cancel := s.sender.summaries.Subscribe(ctx, s.user.ID)
	s.cancelChats = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for list := range ch {
			s.emit(Event{Type: EventChats, Chats: s.render(ctx, list)})
		}
	}()
}

// Open switches the session's single live log subscription to the given
// conversation, cancelling the previous one, and marks the conversation
// seen for this user. The first messages event after Open carries the full
// log; later events carry only new messages.
func (s *Session) Open(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.sender.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return chatlog.ErrConversationNotFound
	}
	if !conv.HasParticipant(s.user.ID) {
		return chatlog.ErrNotParticipant
	}

	ch, cancel, err := s.sender.log.Subscribe(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.cancelLog != nil {
		s.cancelLog()
	}
	s.cancelLog = cancel
	s.active = conversationID
	s.lastDelivered = ""
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range ch {
			if ev, ok := s.delta(conversationID, snap); ok {
				s.emit(ev)
			}
		}
	}()

	// Selecting a conversation clears its unread state.
	if err := s.sender.summaries.MarkSeen(ctx, s.user.ID, conversationID); err != nil {
		s.logger.Warn().Err(err).Str("conversation", conversationID.String()).Msg("mark seen failed")
	}

	return nil
}

// CloseConversation cancels the live log subscription without ending the
// session (the user went back to the list view).
func (s *Session) CloseConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLog != nil {
		s.cancelLog()
		s.cancelLog = nil
	}
	s.active = uuid.Nil
	s.lastDelivered = ""
}

// Send delivers a message into the open conversation via the shared send
// pipeline.
func (s *Session) Send(ctx context.Context, text string, attachment []byte, contentType string) (*models.Message, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == uuid.Nil {
		return nil, ErrNoOpenConversation
	}
	return s.sender.SendWithAttachment(ctx, s.user.ID, active, text, attachment, contentType)
}

// MarkSeen marks the user's own summary entry seen.
func (s *Session) MarkSeen(ctx context.Context, conversationID uuid.UUID) error {
	return s.sender.summaries.MarkSeen(ctx, s.user.ID, conversationID)
}

// Close cancels all subscriptions and closes the events channel. In-flight
// sends are not cancelled; only their feed delivery is dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.cancelLog != nil {
			s.cancelLog()
			s.cancelLog = nil
		}
		s.mu.Unlock()
		if s.cancelChats != nil {
			s.cancelChats()
		}
		s.wg.Wait()
		close(s.events)
		metrics.SyncSessions.Dec()
	})
}

// emit delivers an event unless the session is closing.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// delta computes the slice of messages not yet emitted for the active
// conversation. Snapshots from a cancelled subscription are discarded.
func (s *Session) delta(conversationID uuid.UUID, snap []models.Message) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != conversationID {
		return Event{}, false
	}

	start := 0
	if s.lastDelivered != "" {
		for i := len(snap) - 1; i >= 0; i-- {
			if snap[i].ID == s.lastDelivered {
				start = i + 1
				break
			}
		}
	}
	if start >= len(snap) {
		return Event{}, false
	}

	delta := snap[start:]
	s.lastDelivered = snap[len(snap)-1].ID

	scroll := false
	for _, m := range delta {
		if m.SenderID == s.user.ID.String() {
			scroll = true
			break
		}
	}

	return Event{
		Type:           EventMessages,
		ConversationID: conversationID.String(),
		Messages:       delta,
		ScrollToLatest: scroll,
	}, true
}

// render joins summaries with counterpart records, applying the block
// guard's redaction. A failed counterpart fetch degrades that entry to a
// placeholder; it never aborts the list.
func (s *Session) render(ctx context.Context, list []models.ChatSummary) []models.RenderedSummary {
	rendered := make([]models.RenderedSummary, 0, len(list))
	for _, sum := range list {
		rendered = append(rendered, models.RenderedSummary{
			ChatSummary: sum,
			Peer:        s.peerView(ctx, sum.PeerID),
		})
	}
	return rendered
}

func (s *Session) peerView(ctx context.Context, peerID string) *models.User {
	id, err := uuid.Parse(peerID)
	if err != nil {
		return &models.User{Username: models.RedactedUsername}
	}
	placeholder := &models.User{ID: id, Username: models.RedactedUsername}

	peer, err := s.sender.db.GetUserByID(ctx, id)
	if err != nil || peer == nil {
		return placeholder
	}
	view, err := s.sender.guard.RenderCounterpart(ctx, s.user.ID, peer)
	if err != nil {
		return placeholder
	}
	return view
}

// Package chatlog owns the canonical ordered message sequence of each
// conversation: append, snapshot reads, and the per-conversation change feed.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

var (
	// ErrConversationNotFound is returned when the conversation id is unknown.
	ErrConversationNotFound = errors.New("chatlog: conversation not found")

	// ErrInvalidMessage is returned when a message has neither text nor an
	// attachment.
	ErrInvalidMessage = errors.New("chatlog: message needs text or an attachment")

	// ErrNotParticipant is returned when the sender is not one of the
	// conversation's two participants.
	ErrNotParticipant = errors.New("chatlog: sender is not a participant")
)

// Manager coordinates appends and reads against one store-backed log per
// conversation. Logs are append-only; messages are never mutated or removed.
type Manager struct {
	db    store.DataStore
	redis *store.RedisStore
}

// NewManager creates a new Manager over the given stores.
func NewManager(db store.DataStore, redis *store.RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// Append validates and appends a message to the conversation's log. The
// message timestamp is assigned by the store, monotonic per conversation,
// so client clock skew cannot reorder the log.
func (m *Manager) Append(ctx context.Context, conversationID, senderID uuid.UUID, text, attachmentURL string) (*models.Message, error) {
	if text == "" && attachmentURL == "" {
		return nil, ErrInvalidMessage
	}

	conv, err := m.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, senderID)
	}

	msg := &models.Message{
		ConversationID: conversationID.String(),
		SenderID:       senderID.String(),
		Text:           text,
		AttachmentURL:  attachmentURL,
	}

	if err := m.redis.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	metrics.MessagesAppended.Inc()

	return msg, nil
}

// Snapshot returns the full ordered message sequence of a conversation.
func (m *Manager) Snapshot(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	conv, err := m.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	return m.redis.GetMessages(ctx, conversationID.String())
}

// Subscribe returns a channel of full-conversation snapshots, one delivered
// immediately and one per subsequent change, plus a cancel function. The
// channel is closed after cancellation; callers should drain it. Transient
// fetch failures skip a delivery rather than killing the feed, the next
// change retries.
func (m *Manager) Subscribe(ctx context.Context, conversationID uuid.UUID) (<-chan []models.Message, func(), error) {
	conv, err := m.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	notify, cancelNotify := m.redis.Notifications(ctx, store.ChatFeedChannel(conversationID.String()))

	out := make(chan []models.Message, 1)
	done := make(chan struct{})

	deliver := func() bool {
		snap, err := m.redis.GetMessages(ctx, conversationID.String())
		if err != nil {
			return true
		}
		select {
		case out <- snap:
			return true
		case <-done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		if !deliver() {
			return
		}
		for range notify {
			if !deliver() {
				return
			}
		}
	}()

	metrics.FeedSubscriptions.WithLabelValues("chat").Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelNotify()
			close(done)
		})
	}
	return out, cancel, nil
}

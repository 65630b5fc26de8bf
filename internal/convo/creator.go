// Package convo implements the conversation creation protocol: allocate the
// conversation record, then register one summary entry per participant.
// There is no cross-document transaction across those three writes, so a
// crash between them leaves the conversation invisible to one or both
// users; that state is surfaced as *PartialCreationError and repaired by
// re-attempting only the missing registrations.
package convo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/summary"
)

var (
	// ErrUserNotFound is returned when a participant id is unknown.
	ErrUserNotFound = errors.New("convo: user not found")

	// ErrConversationNotFound is returned by Repair for an unknown id.
	ErrConversationNotFound = errors.New("convo: conversation not found")

	// ErrSamePair is returned when both participants are the same user.
	ErrSamePair = errors.New("convo: a conversation needs two distinct users")

	// ErrNotParticipant is returned by Repair when the user is not part of
	// the conversation.
	ErrNotParticipant = errors.New("convo: user is not a participant")
)

// PartialCreationError reports a conversation that was created but whose
// summary registration did not complete for every participant. The caller
// should offer Repair for the missing participants instead of re-creating
// the conversation.
type PartialCreationError struct {
	ConversationID uuid.UUID
	Missing        []uuid.UUID
	Err            error
}

func (e *PartialCreationError) Error() string {
	return fmt.Sprintf("convo: conversation %s created but %d summary registration(s) missing: %v",
		e.ConversationID, len(e.Missing), e.Err)
}

func (e *PartialCreationError) Unwrap() error { return e.Err }

// Creator runs the creation protocol.
type Creator struct {
	db        store.DataStore
	summaries *summary.Reconciler
}

// NewCreator creates a new Creator.
func NewCreator(db store.DataStore, summaries *summary.Reconciler) *Creator {
	return &Creator{db: db, summaries: summaries}
}

// Create allocates a conversation between userA and userB and registers an
// empty, seen summary entry in each participant's list. Duplicate
// conversations between the same pair are allowed; callers wanting one
// thread per pair must dedup themselves. On partial failure the created
// conversation is returned together with a *PartialCreationError.
func (c *Creator) Create(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	if userA == userB {
		return nil, ErrSamePair
	}

	for _, id := range []uuid.UUID{userA, userB} {
		u, err := c.db.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
	}

	conv, err := c.db.CreateConversation(ctx, userA, userB)
	if err != nil {
		return nil, err
	}

	// Two independent writes; order matters only for blame in the error.
	var missing []uuid.UUID
	var regErr error
	if err := c.summaries.Register(ctx, userA, conv.ID, userB); err != nil {
		missing = append(missing, userA)
		regErr = errors.Join(regErr, err)
	}
	if err := c.summaries.Register(ctx, userB, conv.ID, userA); err != nil {
		missing = append(missing, userB)
		regErr = errors.Join(regErr, err)
	}

	if len(missing) > 0 {
		return conv, &PartialCreationError{ConversationID: conv.ID, Missing: missing, Err: regErr}
	}

	metrics.ConversationsCreated.Inc()

	return conv, nil
}

// Repair re-attempts the summary registration for one participant of an
// existing conversation. A no-op if the entry already exists, so it is safe
// to retry.
func (c *Creator) Repair(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := c.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("%w: %s", ErrNotParticipant, userID)
	}

	registered, err := c.summaries.Registered(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	return c.summaries.Register(ctx, userID, conversationID, conv.PeerOf(userID))
}

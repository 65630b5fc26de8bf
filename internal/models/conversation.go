package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party message thread. The participant pair is fixed
// at creation; the message sequence lives in Redis and is append-only.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserA     uuid.UUID `json:"user_a"`
	UserB     uuid.UUID `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Participants returns both participant IDs.
func (c *Conversation) Participants() [2]uuid.UUID {
	return [2]uuid.UUID{c.UserA, c.UserB}
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return id == c.UserA || id == c.UserB
}

// PeerOf returns the counterpart of id, or uuid.Nil if id is not a participant.
func (c *Conversation) PeerOf(id uuid.UUID) uuid.UUID {
	switch id {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return uuid.Nil
}

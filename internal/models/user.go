package models

import (
	"time"

	"github.com/google/uuid"
)

// RedactedUsername is shown in place of a real username when either side
// of a conversation has blocked the other.
const RedactedUsername = "User"

// User represents a registered user.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Redacted returns a copy of the user with profile fields replaced by
// placeholders. The ID is retained so callers can still address the user.
func (u *User) Redacted() *User {
	return &User{
		ID:        u.ID,
		Username:  RedactedUsername,
		CreatedAt: u.CreatedAt,
	}
}

// Package block tracks the directed blocked set per user and gates sending
// and counterpart visibility. Blocking is a pure policy layer: it never
// touches message or summary data, so unblocking restores full history.
package block

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

var (
	// ErrSelfBlock is returned when a user tries to block themselves.
	ErrSelfBlock = errors.New("block: cannot block yourself")

	// ErrBlocked is returned when sending is refused because a block exists
	// in either direction between sender and receiver.
	ErrBlocked = errors.New("block: sending not allowed between these users")
)

// Guard answers block-relation queries and applies the visibility policy.
// Edges are owned by the blocker; callers can only mutate their own set,
// which the HTTP layer enforces by taking the blocker from the session.
type Guard struct {
	db store.DataStore
}

// NewGuard creates a new Guard over the given store.
func NewGuard(db store.DataStore) *Guard {
	return &Guard{db: db}
}

// Block adds a directed edge from blocker to blockee. Idempotent.
func (g *Guard) Block(ctx context.Context, blocker, blockee uuid.UUID) error {
	if blocker == blockee {
		return ErrSelfBlock
	}
	if err := g.db.AddBlock(ctx, blocker, blockee); err != nil {
		return err
	}
	metrics.BlockChanges.WithLabelValues("block").Inc()
	return nil
}

// Unblock removes a directed edge from blocker to blockee. Idempotent.
func (g *Guard) Unblock(ctx context.Context, blocker, blockee uuid.UUID) error {
	if blocker == blockee {
		return ErrSelfBlock
	}
	if err := g.db.RemoveBlock(ctx, blocker, blockee); err != nil {
		return err
	}
	metrics.BlockChanges.WithLabelValues("unblock").Inc()
	return nil
}

// IsBlocked reports whether a has blocked b.
func (g *Guard) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return g.db.IsBlocked(ctx, a, b)
}

// CanSend reports whether sender may message receiver: false if a block
// exists in either direction.
func (g *Guard) CanSend(ctx context.Context, sender, receiver uuid.UUID) (bool, error) {
	blocked, err := g.blockedEitherWay(ctx, sender, receiver)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// RenderCounterpart returns the view of counterpart that viewer is allowed
// to see: the real record, or a redacted copy (placeholder name, no avatar,
// id retained) when a block exists in either direction.
func (g *Guard) RenderCounterpart(ctx context.Context, viewerID uuid.UUID, counterpart *models.User) (*models.User, error) {
	blocked, err := g.blockedEitherWay(ctx, viewerID, counterpart.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return counterpart.Redacted(), nil
	}
	return counterpart, nil
}

func (g *Guard) blockedEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if blocked, err := g.db.IsBlocked(ctx, a, b); err != nil || blocked {
		return blocked, err
	}
	return g.db.IsBlocked(ctx, b, a)
}

// Package summary maintains each user's denormalized chat summary list:
// one entry per conversation with the last message preview, the unread
// flag, and the timestamp the list sorts by. Entries are reconciled after
// every log append; the two participants' updates are independent
// read-modify-writes and may be observed out of order, but each converges
// to the latest append.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

// ErrSummaryMissing is returned when a participant has no summary entry for
// a conversation they are part of. That entry is created by the conversation
// creation protocol and never removed, so a missing entry means the
// registration invariant is broken; the reconciler never papers over it by
// creating one.
var ErrSummaryMissing = errors.New("summary: entry missing")

// Reconciler applies log appends to both participants' summary lists and
// owns the presentation ordering policy.
type Reconciler struct {
	redis *store.RedisStore
}

// NewReconciler creates a new Reconciler over the given store.
func NewReconciler(redis *store.RedisStore) *Reconciler {
	return &Reconciler{redis: redis}
}

// Register creates the initial summary entry for one (user, conversation)
// pair: empty preview, seen, timestamped now. Called once per participant
// by the conversation creation protocol, and again by repair for a
// participant whose registration was lost.
func (r *Reconciler) Register(ctx context.Context, userID, conversationID, peerID uuid.UUID) error {
	sum := &models.ChatSummary{
		ConversationID: conversationID.String(),
		PeerID:         peerID.String(),
		LastMessage:    "",
		Seen:           true,
		UpdatedAt:      time.Now().UnixMilli(),
	}
	return r.redis.PutSummary(ctx, userID.String(), sum)
}

// Registered reports whether the user already has an entry for the
// conversation.
func (r *Reconciler) Registered(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	sum, err := r.redis.GetSummary(ctx, userID.String(), conversationID.String())
	if err != nil {
		return false, err
	}
	return sum != nil, nil
}

// OnAppend updates both participants' summary entries for the appended
// message: preview text, a non-decreasing updated-at timestamp, seen=true
// for the sender and seen=false for the counterpart. Both updates are
// attempted even if one fails; failures are joined and surfaced rather
// than retried, since a blind retry after a partial write could clobber a
// newer concurrent update.
func (r *Reconciler) OnAppend(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, uid := range conv.Participants() {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			errs[i] = r.updateEntry(ctx, userID, msg)
		}(i, uid.String())
	}
	wg.Wait()

	metrics.Reconciliations.Inc()

	return errors.Join(errs[0], errs[1])
}

// updateEntry is the per-participant read-modify-write against that
// participant's own entry only.
func (r *Reconciler) updateEntry(ctx context.Context, userID string, msg *models.Message) error {
	sum, err := r.redis.GetSummary(ctx, userID, msg.ConversationID)
	if err != nil {
		return err
	}
	if sum == nil {
		return fmt.Errorf("%w: user %s conversation %s", ErrSummaryMissing, userID, msg.ConversationID)
	}

	// Reconciliations of concurrent appends can complete out of order.
	// Log timestamps are unique and monotonic per conversation, so an
	// entry already carrying a later timestamp has seen a newer message;
	// overwriting it would roll the preview back permanently.
	if msg.Timestamp < sum.LastMessageTS {
		return nil
	}

	sum.LastMessage = msg.Preview()
	sum.LastMessageTS = msg.Timestamp
	sum.Seen = userID == msg.SenderID

	now := time.Now().UnixMilli()
	if now < sum.UpdatedAt {
		now = sum.UpdatedAt
	}
	sum.UpdatedAt = now

	return r.redis.PutSummary(ctx, userID, sum)
}

// MarkSeen sets the seen flag on the caller's own entry. The counterpart's
// entry is never touched.
func (r *Reconciler) MarkSeen(ctx context.Context, userID, conversationID uuid.UUID) error {
	sum, err := r.redis.GetSummary(ctx, userID.String(), conversationID.String())
	if err != nil {
		return err
	}
	if sum == nil {
		return fmt.Errorf("%w: user %s conversation %s", ErrSummaryMissing, userID, conversationID)
	}
	if sum.Seen {
		return nil
	}

	sum.Seen = true
	return r.redis.PutSummary(ctx, userID.String(), sum)
}

// List returns the user's summaries in presentation order: updated-at
// descending, ties broken by conversation id for determinism.
func (r *Reconciler) List(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	summaries, err := r.redis.GetSummaries(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt != summaries[j].UpdatedAt {
			return summaries[i].UpdatedAt > summaries[j].UpdatedAt
		}
		return summaries[i].ConversationID < summaries[j].ConversationID
	})

	return summaries, nil
}

// Subscribe returns a channel of full, ordered summary lists for the user,
// one delivered immediately and one per subsequent change, plus a cancel
// function. Same delivery contract as the chat log feed.
func (r *Reconciler) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan []models.ChatSummary, func()) {
	notify, cancelNotify := r.redis.Notifications(ctx, store.UserChatsFeedChannel(userID.String()))

	out := make(chan []models.ChatSummary, 1)
	done := make(chan struct{})

	deliver := func() bool {
		list, err := r.List(ctx, userID)
		if err != nil {
			return true
		}
		select {
		case out <- list:
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

	metrics.FeedSubscriptions.WithLabelValues("chats").Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelNotify()
			close(done)
		})
	}
	return out, cancel
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/emberchat/ember/internal/models"
)

func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &RedisStore{client: client}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	msg := &models.Message{ConversationID: "conv-1", SenderID: "alice", Text: "hello"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" {
		t.Fatal("expected an assigned message ID")
	}
	if msg.Timestamp == 0 {
		t.Fatal("expected an assigned timestamp")
	}
}

func TestAppendOrderAndMonotonicTimestamps(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		msg := &models.Message{ConversationID: "conv-1", SenderID: "alice", Text: "msg"}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	got, err := s.GetMessages(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(got))
	}

	for i, msg := range got {
		if msg.ID != ids[i] {
			t.Fatalf("message %d out of order: expected %s, got %s", i, ids[i], msg.ID)
		}
		if i > 0 && got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing at %d: %d <= %d",
				i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestGetMessagesEmptyConversation(t *testing.T) {
	s := newTestRedis(t)

	got, err := s.GetMessages(context.Background(), "no-such-conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages, got %d", len(got))
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	sum := &models.ChatSummary{
		ConversationID: "conv-1",
		PeerID:         "bob",
		LastMessage:    "hey",
		Seen:           false,
		UpdatedAt:      time.Now().UnixMilli(),
	}
	if err := s.PutSummary(ctx, "alice", sum); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSummary(ctx, "alice", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a summary")
	}
	if got.PeerID != "bob" || got.LastMessage != "hey" || got.Seen {
		t.Fatalf("summary mismatch: %+v", got)
	}
}

func TestGetSummaryMissing(t *testing.T) {
	s := newTestRedis(t)

	got, err := s.GetSummary(context.Background(), "alice", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing entry, got %+v", got)
	}
}

func TestSummaryEntriesAreIndependent(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	for _, conv := range []string{"conv-1", "conv-2", "conv-3"} {
		err := s.PutSummary(ctx, "alice", &models.ChatSummary{
			ConversationID: conv, PeerID: "bob", LastMessage: "old",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Overwriting one entry must not touch the others.
	err := s.PutSummary(ctx, "alice", &models.ChatSummary{
		ConversationID: "conv-2", PeerID: "bob", LastMessage: "new",
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := s.GetSummaries(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(all))
	}
	for _, sum := range all {
		want := "old"
		if sum.ConversationID == "conv-2" {
			want = "new"
		}
		if sum.LastMessage != want {
			t.Fatalf("entry %s: expected %q, got %q", sum.ConversationID, want, sum.LastMessage)
		}
	}
}

func TestNotificationsSignalOnAppend(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	notify, cancel := s.Notifications(ctx, ChatFeedChannel("conv-1"))
	defer cancel()

	// Subscription setup races with the publish; give it a moment.
	time.Sleep(50 * time.Millisecond)

	msg := &models.Message{ConversationID: "conv-1", SenderID: "alice", Text: "ping"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notify:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a feed notification after append")
	}
}

func TestNotificationsChannelClosesOnCancel(t *testing.T) {
	s := newTestRedis(t)

	notify, cancel := s.Notifications(context.Background(), ChatFeedChannel("conv-1"))
	cancel()

	select {
	case _, ok := <-notify:
		if ok {
			// A signal in flight before cancel is fine; the close must follow.
			if _, ok := <-notify; ok {
				t.Fatal("expected channel to close after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected channel to close after cancel")
	}
}

func TestRateLimitCounter(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	under, err := s.CheckRateLimit(ctx, "ip:1.2.3.4", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !under {
		t.Fatal("fresh bucket should be under the limit")
	}

	for i := 0; i < 2; i++ {
		if err := s.IncrementRateLimit(ctx, "ip:1.2.3.4", time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	under, err = s.CheckRateLimit(ctx, "ip:1.2.3.4", 2)
	if err != nil {
		t.Fatal(err)
	}
	if under {
		t.Fatal("bucket at the limit should not be under it")
	}
}

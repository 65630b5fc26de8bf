package chatlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.DataStore) {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	mr := miniredis.RunT(t)
	rs, err := store.NewRedisStore(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rs.Close() })

	return NewManager(db, rs), db
}

func seedConversation(t *testing.T, db store.DataStore) (*models.Conversation, *models.User, *models.User) {
	t.Helper()
	ctx := context.Background()

	alice, err := db.CreateUser(ctx, "alice", "", "hash")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.CreateUser(ctx, "bob", "", "hash")
	if err != nil {
		t.Fatal(err)
	}
	conv, err := db.CreateConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	return conv, alice, bob
}

func TestAppendAndSnapshot(t *testing.T) {
	m, db := newTestManager(t)
	conv, alice, bob := seedConversation(t, db)
	ctx := context.Background()

	first, err := m.Append(ctx, conv.ID, alice.ID, "hi bob", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Append(ctx, conv.ID, bob.ID, "hi alice", "")
	if err != nil {
		t.Fatal(err)
	}

	snap, err := m.Snapshot(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap))
	}
	if snap[0].ID != first.ID || snap[1].ID != second.ID {
		t.Fatal("messages out of append order")
	}
	if snap[0].SenderID != alice.ID.String() {
		t.Fatalf("wrong sender: %s", snap[0].SenderID)
	}
}

func TestAppendRejectsEmptyMessage(t *testing.T) {
	m, db := newTestManager(t)
	conv, alice, _ := seedConversation(t, db)

	_, err := m.Append(context.Background(), conv.ID, alice.ID, "", "")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestAppendAttachmentOnlyAllowed(t *testing.T) {
	m, db := newTestManager(t)
	conv, alice, _ := seedConversation(t, db)

	msg, err := m.Append(context.Background(), conv.ID, alice.ID, "", "https://cdn/img.png")
	if err != nil {
		t.Fatal(err)
	}
	if msg.AttachmentURL != "https://cdn/img.png" {
		t.Fatalf("attachment lost: %+v", msg)
	}
}

func TestAppendUnknownConversation(t *testing.T) {
	m, db := newTestManager(t)
	_, alice, _ := seedConversation(t, db)

	_, err := m.Append(context.Background(), uuid.New(), alice.ID, "hi", "")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestAppendRejectsNonParticipant(t *testing.T) {
	m, db := newTestManager(t)
	conv, _, _ := seedConversation(t, db)

	eve, err := db.CreateUser(context.Background(), "eve", "", "hash")
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Append(context.Background(), conv.ID, eve.ID, "let me in", "")
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	m, db := newTestManager(t)
	conv, alice, bob := seedConversation(t, db)
	ctx := context.Background()

	const perSender = 25
	var wg sync.WaitGroup
	for _, sender := range []uuid.UUID{alice.ID, bob.ID} {
		wg.Add(1)
		go func(sender uuid.UUID) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := m.Append(ctx, conv.ID, sender, fmt.Sprintf("msg %d", i), ""); err != nil {
					t.Error(err)
					return
				}
			}
		}(sender)
	}
	wg.Wait()

	snap, err := m.Snapshot(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2*perSender {
		t.Fatalf("expected %d messages, got %d", 2*perSender, len(snap))
	}

	seen := make(map[string]bool, len(snap))
	for i, msg := range snap {
		if seen[msg.ID] {
			t.Fatalf("duplicate message %s", msg.ID)
		}
		seen[msg.ID] = true
		if i > 0 && snap[i].Timestamp <= snap[i-1].Timestamp {
			t.Fatalf("order violated at %d: %d <= %d", i, snap[i].Timestamp, snap[i-1].Timestamp)
		}
	}
}

func TestSubscribeDeliversInitialSnapshotAndChanges(t *testing.T) {
	m, db := newTestManager(t)
	conv, alice, bob := seedConversation(t, db)
	ctx := context.Background()

	if _, err := m.Append(ctx, conv.ID, alice.ID, "before", ""); err != nil {
		t.Fatal(err)
	}

	feed, cancel, err := m.Subscribe(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	select {
	case snap := <-feed:
		if len(snap) != 1 || snap[0].Text != "before" {
			t.Fatalf("unexpected initial snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := m.Append(ctx, conv.ID, bob.ID, "after", ""); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-feed:
			if len(snap) == 2 && snap[1].Text == "after" {
				return
			}
		case <-deadline:
			t.Fatal("change never delivered")
		}
	}
}

func TestSubscribeUnknownConversation(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.Subscribe(context.Background(), uuid.New())
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestSubscribeCancelClosesFeed(t *testing.T) {
	m, db := newTestManager(t)
	conv, _, _ := seedConversation(t, db)

	feed, cancel, err := m.Subscribe(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Drain the initial snapshot, then cancel twice; the second must be a
	// no-op and the channel must close.
	<-feed
	cancel()
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			t.Fatal("expected closed feed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not close")
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice", "https://cdn/a.png", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if user.Username != "alice" || user.Avatar != "https://cdn/a.png" {
		t.Fatalf("unexpected user: %+v", user)
	}

	byID, err := s.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID == nil || byID.Username != "alice" {
		t.Fatalf("lookup by ID failed: %+v", byID)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if byName == nil || byName.ID != user.ID {
		t.Fatalf("lookup by username failed: %+v", byName)
	}
}

func TestGetUserMissingReturnsNil(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	user, err := s.GetUserByID(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if user != nil {
		t.Fatalf("expected nil for missing user, got %+v", user)
	}

	user, err = s.GetUserByUsername(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if user != nil {
		t.Fatalf("expected nil for missing username, got %+v", user)
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "", "hash"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, "alice", "", "hash"); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestBlockEdgeLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice", "", "hash")
	bob, _ := s.CreateUser(ctx, "bob", "", "hash")

	blocked, err := s.IsBlocked(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Fatal("no edge yet")
	}

	// Adding twice must be a no-op, not an error.
	if err := s.AddBlock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AddBlock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	blocked, _ = s.IsBlocked(ctx, alice.ID, bob.ID)
	if !blocked {
		t.Fatal("edge should exist")
	}

	// The edge is directed.
	reverse, _ := s.IsBlocked(ctx, bob.ID, alice.ID)
	if reverse {
		t.Fatal("reverse edge should not exist")
	}

	list, err := s.ListBlocked(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0] != bob.ID {
		t.Fatalf("unexpected blocked list: %v", list)
	}

	// Removing twice must also be a no-op.
	if err := s.RemoveBlock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveBlock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	blocked, _ = s.IsBlocked(ctx, alice.ID, bob.ID)
	if blocked {
		t.Fatal("edge should be gone")
	}
}

func TestCreateConversation(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice", "", "hash")
	bob, _ := s.CreateUser(ctx, "bob", "", "hash")

	conv, err := s.CreateConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.UserA != alice.ID || conv.UserB != bob.ID {
		t.Fatalf("unexpected participants: %+v", conv)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != conv.ID {
		t.Fatalf("lookup failed: %+v", got)
	}

	// Duplicate pairs are allowed; each call makes a distinct thread.
	second, err := s.CreateConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == conv.ID {
		t.Fatal("expected a distinct conversation ID")
	}

	count, err := s.CountConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 conversations, got %d", count)
	}
}

func TestGetConversationMissingReturnsNil(t *testing.T) {
	s := newTestSQLite(t)

	conv, err := s.GetConversation(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if conv != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", conv)
	}
}

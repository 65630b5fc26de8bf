package block

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
)

func newTestGuard(t *testing.T) (*Guard, *models.User, *models.User) {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	alice, err := db.CreateUser(ctx, "alice", "https://cdn/a.png", "hash")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.CreateUser(ctx, "bob", "https://cdn/b.png", "hash")
	if err != nil {
		t.Fatal(err)
	}
	return NewGuard(db), alice, bob
}

func TestBlockIsIdempotent(t *testing.T) {
	g, alice, bob := newTestGuard(t)
	ctx := context.Background()

	if err := g.Block(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := g.Block(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	blocked, err := g.IsBlocked(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("edge should exist")
	}

	if err := g.Unblock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := g.Unblock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	blocked, _ = g.IsBlocked(ctx, alice.ID, bob.ID)
	if blocked {
		t.Fatal("edge should be gone")
	}
}

func TestSelfBlockRejected(t *testing.T) {
	g, alice, _ := newTestGuard(t)

	if err := g.Block(context.Background(), alice.ID, alice.ID); !errors.Is(err, ErrSelfBlock) {
		t.Fatalf("expected ErrSelfBlock, got %v", err)
	}
	if err := g.Unblock(context.Background(), alice.ID, alice.ID); !errors.Is(err, ErrSelfBlock) {
		t.Fatalf("expected ErrSelfBlock, got %v", err)
	}
}

func TestCanSendBlockedEitherDirection(t *testing.T) {
	g, alice, bob := newTestGuard(t)
	ctx := context.Background()

	ok, err := g.CanSend(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("unblocked pair should be able to send")
	}

	// Alice blocks Bob: neither direction may send.
	if err := g.Block(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.CanSend(ctx, alice.ID, bob.ID); ok {
		t.Fatal("blocker should not be able to send")
	}
	if ok, _ := g.CanSend(ctx, bob.ID, alice.ID); ok {
		t.Fatal("blocked user should not be able to send")
	}

	if err := g.Unblock(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.CanSend(ctx, bob.ID, alice.ID); !ok {
		t.Fatal("sending should work again after unblock")
	}
}

func TestRenderCounterpartRedaction(t *testing.T) {
	g, alice, bob := newTestGuard(t)
	ctx := context.Background()

	view, err := g.RenderCounterpart(ctx, alice.ID, bob)
	if err != nil {
		t.Fatal(err)
	}
	if view.Username != "bob" || view.Avatar == "" {
		t.Fatalf("unblocked counterpart should be shown as-is: %+v", view)
	}

	if err := g.Block(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	view, err = g.RenderCounterpart(ctx, alice.ID, bob)
	if err != nil {
		t.Fatal(err)
	}
	if view.Username != models.RedactedUsername || view.Avatar != "" {
		t.Fatalf("blocked counterpart should be redacted: %+v", view)
	}
	if view.ID != bob.ID {
		t.Fatal("redaction must keep the ID addressable")
	}

	// Redaction also applies when the viewer is the one who was blocked.
	view, err = g.RenderCounterpart(ctx, bob.ID, alice)
	if err != nil {
		t.Fatal(err)
	}
	if view.Username != models.RedactedUsername {
		t.Fatalf("blocked viewer should see a redacted counterpart: %+v", view)
	}
}

func TestUnblockRestoresFullView(t *testing.T) {
	g, alice, bob := newTestGuard(t)
	ctx := context.Background()

	g.Block(ctx, alice.ID, bob.ID)
	g.Unblock(ctx, alice.ID, bob.ID)

	view, err := g.RenderCounterpart(ctx, alice.ID, bob)
	if err != nil {
		t.Fatal(err)
	}
	if view.Username != "bob" || view.Avatar != "https://cdn/b.png" {
		t.Fatalf("unblock must restore the real record: %+v", view)
	}
}

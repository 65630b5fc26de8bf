package convo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/summary"
)

type testEnv struct {
	creator   *Creator
	summaries *summary.Reconciler
	db        store.DataStore
	mr        *miniredis.Miniredis
	alice     *models.User
	bob       *models.User
}

func newTestEnv(t *testing.T) *testEnv {
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

	alice, err := db.CreateUser(ctx, "alice", "", "hash")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.CreateUser(ctx, "bob", "", "hash")
	if err != nil {
		t.Fatal(err)
	}

	summaries := summary.NewReconciler(rs)
	return &testEnv{
		creator:   NewCreator(db, summaries),
		summaries: summaries,
		db:        db,
		mr:        mr,
		alice:     alice,
		bob:       bob,
	}
}

func TestCreateRegistersBothParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	for _, uid := range []uuid.UUID{env.alice.ID, env.bob.ID} {
		ok, err := env.summaries.Registered(ctx, uid, conv.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("participant %s has no summary entry", uid)
		}
	}

	// Each side's entry points at the other participant.
	aliceList, _ := env.summaries.List(ctx, env.alice.ID)
	if aliceList[0].PeerID != env.bob.ID.String() {
		t.Fatalf("alice's entry should point at bob, got %s", aliceList[0].PeerID)
	}
}

func TestCreateSamePairRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.creator.Create(context.Background(), env.alice.ID, env.alice.ID)
	if !errors.Is(err, ErrSamePair) {
		t.Fatalf("expected ErrSamePair, got %v", err)
	}
}

func TestCreateUnknownUserRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.creator.Create(context.Background(), env.alice.ID, uuid.New())
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	// Nothing should have been created.
	count, _ := env.db.CountConversations(context.Background())
	if count != 0 {
		t.Fatalf("expected 0 conversations, got %d", count)
	}
}

func TestCreateDuplicatePairAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("each create should make a distinct conversation")
	}

	list, _ := env.summaries.List(ctx, env.alice.ID)
	if len(list) != 2 {
		t.Fatalf("expected 2 summary entries, got %d", len(list))
	}
}

func TestPartialCreationSurfacedAndRepairable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The summary store fails mid-protocol: the conversation record lands
	// but neither registration does.
	env.mr.SetError("summary store down")
	conv, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)

	var partial *PartialCreationError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCreationError, got %v", err)
	}
	if conv == nil || partial.ConversationID != conv.ID {
		t.Fatal("partial error must reference the created conversation")
	}
	if len(partial.Missing) != 2 {
		t.Fatalf("expected both participants missing, got %v", partial.Missing)
	}

	// The conversation record exists despite the failure.
	got, err := env.db.GetConversation(ctx, conv.ID)
	if err != nil || got == nil {
		t.Fatalf("conversation record should exist: %v", err)
	}

	// After the store recovers, repair completes each side independently.
	env.mr.SetError("")
	for _, uid := range []uuid.UUID{env.alice.ID, env.bob.ID} {
		if err := env.creator.Repair(ctx, conv.ID, uid); err != nil {
			t.Fatal(err)
		}
		ok, _ := env.summaries.Registered(ctx, uid, conv.ID)
		if !ok {
			t.Fatalf("participant %s still unregistered after repair", uid)
		}
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Repairing a healthy conversation changes nothing.
	before, _ := env.summaries.List(ctx, env.alice.ID)
	if err := env.creator.Repair(ctx, conv.ID, env.alice.ID); err != nil {
		t.Fatal(err)
	}
	after, _ := env.summaries.List(ctx, env.alice.ID)
	if before[0].UpdatedAt != after[0].UpdatedAt {
		t.Fatal("repair of a registered entry must not rewrite it")
	}
}

func TestRepairValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.creator.Repair(ctx, uuid.New(), env.alice.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	conv, err := env.creator.Create(ctx, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	eve, _ := env.db.CreateUser(ctx, "eve", "", "hash")
	if err := env.creator.Repair(ctx, conv.ID, eve.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

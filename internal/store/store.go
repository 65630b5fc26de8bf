package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/models"
)

// DataStore defines the interface for durable storage of users, block
// relations, and conversation records. Both PostgresStore and SQLiteStore
// implement this interface. Lookups return (nil, nil) when the document
// does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, avatar, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Block relations: directed edges owned by the blocker. Add and remove
	// are idempotent.
	AddBlock(ctx context.Context, blocker, blocked uuid.UUID) error
	RemoveBlock(ctx context.Context, blocker, blocked uuid.UUID) error
	IsBlocked(ctx context.Context, blocker, blocked uuid.UUID) (bool, error)
	ListBlocked(ctx context.Context, blocker uuid.UUID) ([]uuid.UUID, error)

	// Conversation operations. The participant pair is immutable after
	// creation and duplicate pairs are allowed.
	CreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	CountConversations(ctx context.Context) (int64, error)
}

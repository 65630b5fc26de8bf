package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/emberchat/ember/internal/models"
)

// SQLiteStore handles SQLite database operations. Used for development and
// tests; production deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/ember.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/ember.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		avatar TEXT DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS blocked_users (
		blocker_id TEXT NOT NULL REFERENCES users(id),
		blocked_id TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (blocker_id, blocked_id)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL REFERENCES users(id),
		user_b TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, avatar, passwordHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, avatar, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), username, avatar, passwordHash, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// scanUser scans one user row.
func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(&idStr, &user.Username, &user.Avatar, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, avatar, password_hash, created_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByUsername retrieves a user by exact username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, avatar, password_hash, created_at
		FROM users WHERE username = ?
	`, username))
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AddBlock adds a directed block edge. Adding an existing edge is a no-op.
func (s *SQLiteStore) AddBlock(ctx context.Context, blocker, blocked uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO blocked_users (blocker_id, blocked_id)
		VALUES (?, ?)
	`, blocker.String(), blocked.String())
	return err
}

// RemoveBlock removes a directed block edge. Removing a missing edge is a no-op.
func (s *SQLiteStore) RemoveBlock(ctx context.Context, blocker, blocked uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?
	`, blocker.String(), blocked.String())
	return err
}

// IsBlocked reports whether blocker has blocked blocked.
func (s *SQLiteStore) IsBlocked(ctx context.Context, blocker, blocked uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?
	`, blocker.String(), blocked.String()).Scan(&count)
	return count > 0, err
}

// ListBlocked returns the IDs blocked by the given user.
func (s *SQLiteStore) ListBlocked(ctx context.Context, blocker uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blocked_id FROM blocked_users WHERE blocker_id = ?
	`, blocker.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocked []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		blocked = append(blocked, id)
	}
	return blocked, rows.Err()
}

// CreateConversation creates a new conversation record for the given pair.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_a, user_b, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), userA.String(), userB.String(), now)
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var idStr, aStr, bStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_a, user_b, created_at
		FROM conversations WHERE id = ?
	`, id.String()).Scan(&idStr, &aStr, &bStr, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if conv.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if conv.UserA, err = uuid.Parse(aStr); err != nil {
		return nil, err
	}
	if conv.UserB, err = uuid.Parse(bStr); err != nil {
		return nil, err
	}
	return conv, nil
}

// CountConversations returns the total number of conversations.
func (s *SQLiteStore) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/emberchat/ember/internal/models"
)

// RedisStore handles Redis operations for message logs, chat summary lists,
// change-feed notifications, and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// chatMessagesKey returns the key for a conversation's message sorted set.
func chatMessagesKey(conversationID string) string {
	return fmt.Sprintf("chat:%s:messages", conversationID)
}

// userChatsKey returns the key for a user's chat summary hash.
func userChatsKey(userID string) string {
	return fmt.Sprintf("user:%s:chats", userID)
}

// ChatFeedChannel returns the pub/sub channel notified on every append to a
// conversation's message log.
func ChatFeedChannel(conversationID string) string {
	return fmt.Sprintf("feed:chat:%s", conversationID)
}

// UserChatsFeedChannel returns the pub/sub channel notified whenever any
// entry of a user's summary list changes.
func UserChatsFeedChannel(userID string) string {
	return fmt.Sprintf("feed:user:%s:chats", userID)
}

// appendScript clamps the timestamp to be strictly greater than the current
// newest entry and adds the message in one atomic step, so concurrent
// appends to the same conversation can never tie or interleave scores.
var appendScript = redis.NewScript(`
local newest = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local ts = tonumber(ARGV[1])
if newest[2] and ts <= tonumber(newest[2]) then
	ts = tonumber(newest[2]) + 1
end
redis.call('ZADD', KEYS[1], ts, ARGV[2])
return ts
`)

// AppendMessage appends a message to its conversation's log. The ID and
// timestamp are assigned here; the timestamp lives in the entry's score and
// is strictly increasing per conversation, so log order is total.
func (s *RedisStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}

	// The stored member carries a zero timestamp; the score is the source
	// of truth and readers restore it from there.
	msg.Timestamp = 0
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := chatMessagesKey(msg.ConversationID)
	ts, err := appendScript.Run(ctx, s.client, []string{key},
		time.Now().UnixMilli(), string(data)).Int64()
	if err != nil {
		return err
	}
	msg.Timestamp = ts

	// Notify log subscribers. Best-effort: a missed notification only
	// delays delivery until the next change.
	s.client.Publish(ctx, ChatFeedChannel(msg.ConversationID), msg.ID)

	return nil
}

// GetMessages retrieves the full ordered message sequence of a conversation.
func (s *RedisStore) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	results, err := s.client.ZRangeWithScores(ctx, chatMessagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, entry := range results {
		data, ok := entry.Member.(string)
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		msg.Timestamp = int64(entry.Score)
		messages = append(messages, msg)
	}

	return messages, nil
}

// CountMessages returns the number of messages in a conversation's log.
func (s *RedisStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	return s.client.ZCard(ctx, chatMessagesKey(conversationID)).Result()
}

// GetSummary retrieves one user's summary entry for one conversation, or
// nil if the user has no entry for it.
func (s *RedisStore) GetSummary(ctx context.Context, userID, conversationID string) (*models.ChatSummary, error) {
	data, err := s.client.HGet(ctx, userChatsKey(userID), conversationID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var sum models.ChatSummary
	if err := json.Unmarshal([]byte(data), &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// PutSummary writes one summary entry into the owner's list and notifies
// the owner's summary feed. Writes are per-conversation hash fields, so
// concurrent updates to other entries in the same list are never clobbered.
func (s *RedisStore) PutSummary(ctx context.Context, userID string, sum *models.ChatSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}

	if err := s.client.HSet(ctx, userChatsKey(userID), sum.ConversationID, string(data)).Err(); err != nil {
		return err
	}

	s.client.Publish(ctx, UserChatsFeedChannel(userID), sum.ConversationID)

	return nil
}

// GetSummaries retrieves all of a user's summary entries, unordered.
// Presentation ordering is applied by the reconciler.
func (s *RedisStore) GetSummaries(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	fields, err := s.client.HGetAll(ctx, userChatsKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(fields))
	for _, data := range fields {
		var sum models.ChatSummary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			continue
		}
		summaries = append(summaries, sum)
	}

	return summaries, nil
}

// Notifications subscribes to a feed channel and returns a channel that
// receives one (coalesced) signal per published change, plus a cancel
// function. The returned channel is closed after cancel. go-redis
// resubscribes internally after connection loss, so the feed survives
// transient store failures without caller involvement.
func (s *RedisStore) Notifications(ctx context.Context, channel string) (<-chan struct{}, func()) {
	ps := s.client.Subscribe(ctx, channel)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		for range ps.Channel() {
			select {
			case out <- struct{}{}:
			default:
				// Already a pending signal; subscribers re-fetch a full
				// snapshot per signal, so bursts coalesce.
			}
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}

// CheckRateLimit checks if a bucket is under the given limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, bucket string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(bucket)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments a bucket's counter with a window TTL.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, bucket string, window time.Duration) error {
	key := rateLimitKey(bucket)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/core"
)

// RedisStore persists timelines as Redis lists, one per thread, with a
// companion counter key providing atomic sequence assignment.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %v", core.ErrInvalidConfiguration, err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewWorkflowError("history.NewRedisStore", "history", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: "cerina",
		ttl:       7 * 24 * time.Hour,
	}
}

func (s *RedisStore) listKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:history", s.keyPrefix, threadID)
}

func (s *RedisStore) seqKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:seq", s.keyPrefix, threadID)
}

// Append assigns the next sequence via INCR and pushes the entry.
func (s *RedisStore) Append(ctx context.Context, e *Entry) error {
	if e == nil || e.ThreadID == "" {
		return fmt.Errorf("%w: entry with thread ID required", core.ErrInvalidConfiguration)
	}
	seq, err := s.client.Incr(ctx, s.seqKey(e.ThreadID)).Result()
	if err != nil {
		return core.NewWorkflowError("history.Append", "history", err)
	}
	e.Sequence = seq
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return core.NewWorkflowError("history.Append", "history", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.listKey(e.ThreadID), data)
	pipe.Expire(ctx, s.listKey(e.ThreadID), s.ttl)
	pipe.Expire(ctx, s.seqKey(e.ThreadID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewWorkflowError("history.Append", "history", err)
	}
	return nil
}

// List returns the thread's timeline in sequence order.
func (s *RedisStore) List(ctx context.Context, threadID string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.listKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, core.NewWorkflowError("history.List", "history", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, core.NewWorkflowError("history.List", "history", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/graph"
)

const defaultKeyPrefix = "cerina"

// RedisStore persists checkpoints in Redis as JSON values with a TTL,
// so abandoned threads expire instead of accumulating.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    core.Logger
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithTTL sets the checkpoint expiry. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithLogger sets the store logger
func WithLogger(logger core.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, opts ...RedisOption) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %v", core.ErrInvalidConfiguration, err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewWorkflowError("checkpoint.NewRedisStore", "checkpoint", err)
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       24 * time.Hour,
		logger:    &core.NoOpLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       24 * time.Hour,
		logger:    &core.NoOpLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:checkpoint", s.keyPrefix, threadID)
}

// Put writes the checkpoint as a single JSON value. The write is whole
// or not at all; a torn checkpoint cannot exist.
func (s *RedisStore) Put(ctx context.Context, threadID string, cp *graph.Checkpoint) error {
	if threadID == "" || cp == nil {
		return fmt.Errorf("%w: thread ID and checkpoint required", core.ErrInvalidConfiguration)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return core.NewWorkflowError("checkpoint.Put", "checkpoint", err)
	}
	if err := s.client.Set(ctx, s.key(threadID), data, s.ttl).Err(); err != nil {
		return core.NewWorkflowError("checkpoint.Put", "checkpoint", err)
	}
	s.logger.Debug("Checkpoint saved", map[string]interface{}{
		"thread_id": threadID,
		"next":      cp.Next,
	})
	return nil
}

// Get loads and decodes the thread's checkpoint.
func (s *RedisStore) Get(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("thread %s: %w", threadID, core.ErrNoCheckpoint)
		}
		return nil, core.NewWorkflowError("checkpoint.Get", "checkpoint", err)
	}
	var cp graph.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, core.NewWorkflowError("checkpoint.Get", "checkpoint", err)
	}
	return &cp, nil
}

// Delete removes the thread's checkpoint. Missing keys are not errors.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return core.NewWorkflowError("checkpoint.Delete", "checkpoint", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

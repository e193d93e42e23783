package graph

import (
	"context"
	"time"
)

// Checkpoint is a durable snapshot of one thread's execution: the full
// merged state after the last completed super-step, and the node names
// due to execute next. A checkpoint is written whole or not at all.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	State     State     `json:"state"`
	Next      []string  `json:"next"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointStore persists checkpoints keyed by thread ID.
// Get returns core.ErrNoCheckpoint when the thread has none.
type CheckpointStore interface {
	Put(ctx context.Context, threadID string, cp *Checkpoint) error
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

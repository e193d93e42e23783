// Package checkpoint provides durable and in-memory implementations of
// the graph.CheckpointStore contract.
package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/graph"
)

// MemoryStore keeps checkpoints in process memory. Semantics match
// RedisStore exactly so tests and single-process deployments can swap
// it in without behavior drift.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*graph.Checkpoint
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]*graph.Checkpoint),
	}
}

// Put stores a deep copy keyed by thread ID.
func (s *MemoryStore) Put(ctx context.Context, threadID string, cp *graph.Checkpoint) error {
	if threadID == "" || cp == nil {
		return fmt.Errorf("%w: thread ID and checkpoint required", core.ErrInvalidConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[threadID] = copyCheckpoint(cp)
	return nil
}

// Get returns a deep copy, or core.ErrNoCheckpoint.
func (s *MemoryStore) Get(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, core.ErrNoCheckpoint)
	}
	return copyCheckpoint(cp), nil
}

// Delete removes a thread's checkpoint. Deleting a missing thread is
// not an error.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, threadID)
	return nil
}

func copyCheckpoint(cp *graph.Checkpoint) *graph.Checkpoint {
	return &graph.Checkpoint{
		ThreadID:  cp.ThreadID,
		State:     cp.State.Clone(),
		Next:      append([]string(nil), cp.Next...),
		UpdatedAt: cp.UpdatedAt,
	}
}

package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/core"
)

// MemoryStore keeps timelines in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string][]Entry
	sequence map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string][]Entry),
		sequence: make(map[string]int64),
	}
}

// Append assigns the next sequence number and stores a copy.
func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	if e == nil || e.ThreadID == "" {
		return fmt.Errorf("%w: entry with thread ID required", core.ErrInvalidConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence[e.ThreadID]++
	e.Sequence = s.sequence[e.ThreadID]
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[e.ThreadID] = append(s.entries[e.ThreadID], *e)
	return nil
}

// List returns the thread's timeline in sequence order.
func (s *MemoryStore) List(ctx context.Context, threadID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries[threadID]))
	copy(out, s.entries[threadID])
	return out, nil
}

package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
)

func runBridge(t *testing.T, evs []events.Event, opts ...BridgeOption) (*MemoryStore, []events.Event, error) {
	t.Helper()
	store := NewMemoryStore()

	var forwarded []events.Event
	opts = append(opts, WithForward(func(ev events.Event) error {
		forwarded = append(forwarded, ev)
		return nil
	}))
	bridge := NewBridge(store, "t1", "run1", opts...)

	ch := make(chan events.Event, len(evs)+1)
	for _, ev := range evs {
		ch <- ev
	}
	ch <- events.DoneEvent()
	close(ch)

	err := bridge.Run(context.Background(), ch)
	return store, forwarded, err
}

func TestBridgePersistsDurableSkipsTransient(t *testing.T) {
	store, forwarded, err := runBridge(t, []events.Event{
		events.AgentStart("planner"),
		events.ThoughtChunk("planner", "thinking"),
		events.MessageChunk("planner", "par"),
		events.MessageEnd("planner"),
		events.Message("planner", "partial plan ready"),
		events.Status("planner", "working"),
		events.ToolCall("planner", "search_clinical_guidelines", nil),
		events.ToolResult("planner", "search_clinical_guidelines", "guidelines"),
	})
	require.NoError(t, err)

	entries, err := store.List(context.Background(), "t1")
	require.NoError(t, err)

	var types []string
	for _, e := range entries {
		types = append(types, e.ItemType)
	}
	assert.Equal(t, []string{"agent_start", "message", "tool_result"}, types)

	// Sequences strictly increasing.
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.Equal(t, "run1", e.RunID)
	}

	// Everything, transient included, was forwarded.
	assert.Len(t, forwarded, 8)
}

func TestBridgeStopsAtDoneSentinel(t *testing.T) {
	store := NewMemoryStore()
	bridge := NewBridge(store, "t1", "run1")

	ch := make(chan events.Event, 4)
	ch <- events.Message("a", "before")
	ch <- events.DoneEvent()
	// Never closed: Run must return at the sentinel anyway.

	done := make(chan error, 1)
	go func() { done <- bridge.Run(context.Background(), ch) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop at done sentinel")
	}
}

func TestBridgeDeduplicatesRepeatedApproval(t *testing.T) {
	store, forwarded, err := runBridge(t, []events.Event{
		events.PlanPendingApproval("planner", "the same plan", nil),
		events.PlanPendingApproval("planner", "the same plan", nil),
	})
	require.NoError(t, err)

	entries, _ := store.List(context.Background(), "t1")
	assert.Len(t, entries, 1)
	assert.Len(t, forwarded, 1)
}

func TestBridgeAllowsNewApprovalAfterRevision(t *testing.T) {
	store, _, err := runBridge(t, []events.Event{
		events.PlanPendingApproval("planner", "plan v1", nil),
		events.PlanPendingApproval("planner", "plan v2", nil),
	})
	require.NoError(t, err)

	entries, _ := store.List(context.Background(), "t1")
	assert.Len(t, entries, 2)
}

func TestBridgeSuppressesApprovalOnFinalDecision(t *testing.T) {
	store, forwarded, err := runBridge(t, []events.Event{
		events.PlanPendingApproval("planner", "stale replay", nil),
		events.Message("draftsman", "drafting"),
	}, WithSuppressPendingApproval())
	require.NoError(t, err)

	entries, _ := store.List(context.Background(), "t1")
	require.Len(t, entries, 1)
	assert.Equal(t, "message", entries[0].ItemType)
	assert.Len(t, forwarded, 1)
}

func TestBridgeTimesOutOnStalledStream(t *testing.T) {
	store := NewMemoryStore()
	bridge := NewBridge(store, "t1", "run1", WithTimeout(50*time.Millisecond))

	ch := make(chan events.Event)
	err := bridge.Run(context.Background(), ch)
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestBridgeStopsOnContextCancel(t *testing.T) {
	store := NewMemoryStore()
	bridge := NewBridge(store, "t1", "run1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bridge.Run(ctx, make(chan events.Event))
	assert.ErrorIs(t, err, core.ErrContextCanceled)
}

func TestBridgePersistsDespiteForwardFailure(t *testing.T) {
	store := NewMemoryStore()
	bridge := NewBridge(store, "t1", "run1", WithForward(func(events.Event) error {
		return assert.AnError
	}))

	ch := make(chan events.Event, 2)
	ch <- events.Message("a", "hello")
	ch <- events.DoneEvent()
	close(ch)

	require.NoError(t, bridge.Run(context.Background(), ch))
	entries, _ := store.List(context.Background(), "t1")
	assert.Len(t, entries, 1)
}

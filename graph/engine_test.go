package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenvasou/cerina-v0/core"
)

// memStore is a minimal in-package checkpoint store so engine tests do
// not depend on the checkpoint package.
type memStore struct {
	mu   sync.Mutex
	data map[string]*Checkpoint
	puts int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]*Checkpoint)}
}

func (s *memStore) Put(ctx context.Context, threadID string, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.data[threadID] = &Checkpoint{
		ThreadID:  cp.ThreadID,
		State:     cp.State.Clone(),
		Next:      append([]string(nil), cp.Next...),
		UpdatedAt: cp.UpdatedAt,
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.data[threadID]
	if !ok {
		return nil, core.ErrNoCheckpoint
	}
	return cp, nil
}

func (s *memStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

func setNode(key string, value any) NodeFunc {
	return func(ctx context.Context, s State) (*NodeResult, error) {
		return UpdateResult(State{key: value}), nil
	}
}

func TestInvokeLinear(t *testing.T) {
	store := newMemStore()
	b := NewBuilder(Schema{})
	b.AddNode("a", setNode("a", 1))
	b.AddNode("b", setNode("b", 2))
	b.SetEntryPoint("a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), State{}, "t1")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Nil(t, res.Interrupt)
	assert.Equal(t, 1, res.State.GetInt("a"))
	assert.Equal(t, 2, res.State.GetInt("b"))

	// One checkpoint per completed super-step.
	assert.Equal(t, 2, store.puts)
	cp, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, cp.Next)
}

func TestFanOutNoLostUpdates(t *testing.T) {
	store := newMemStore()
	schema := Schema{
		"messages": {Policy: Append},
		"pad":      {Policy: Concat},
	}

	writer := func(name string) NodeFunc {
		return func(ctx context.Context, s State) (*NodeResult, error) {
			time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			return UpdateResult(State{
				"messages": []any{name},
				"pad":      name + ";",
			}), nil
		}
	}

	b := NewBuilder(schema)
	b.AddNode("dispatch", setNode("started", true))
	b.AddNode("w1", writer("w1"))
	b.AddNode("w2", writer("w2"))
	b.AddNode("w3", writer("w3"))
	b.AddNode("join", setNode("joined", true))
	b.SetEntryPoint("dispatch")
	b.AddEdge("dispatch", "w1")
	b.AddEdge("dispatch", "w2")
	b.AddEdge("dispatch", "w3")
	b.AddEdge("w1", "join")
	b.AddEdge("w2", "join")
	b.AddEdge("w3", "join")
	b.AddEdge("join", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := g.Invoke(context.Background(), State{}, fmt.Sprintf("fan-%d", i))
		require.NoError(t, err)
		require.True(t, res.Done)

		// All three writers landed regardless of completion order.
		assert.Len(t, res.State.GetList("messages"), 3)
		assert.Len(t, res.State.GetString("pad"), len("w1;")*3)
		assert.True(t, res.State.GetBool("joined"))
	}
}

func TestConditionalRoutingAndLoop(t *testing.T) {
	store := newMemStore()
	var workRuns int

	b := NewBuilder(Schema{})
	b.AddNode("work", func(ctx context.Context, s State) (*NodeResult, error) {
		workRuns++
		return UpdateResult(State{"n": s.GetInt("n") + 1}), nil
	})
	b.SetEntryPoint("work")
	b.AddConditionalEdges("work", func(s State) string {
		if s.GetInt("n") < 3 {
			return "again"
		}
		return "done"
	}, map[string]string{"again": "work", "done": End})

	g, err := b.Compile(store)
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), State{}, "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, res.State.GetInt("n"))
	assert.Equal(t, 3, workRuns)
}

func TestUnknownRouteLabelIsFatal(t *testing.T) {
	store := newMemStore()
	b := NewBuilder(Schema{})
	b.AddNode("a", setNode("x", 1))
	b.AddNode("b", setNode("y", 1))
	b.SetEntryPoint("a")
	b.AddConditionalEdges("a", func(s State) string { return "nowhere" },
		map[string]string{"b": "b"})
	b.AddEdge("b", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), State{}, "bad-route")
	var routingErr *RoutingError
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, "a", routingErr.Node)
	assert.Equal(t, "nowhere", routingErr.Label)
}

func TestNodeFailureWrapsIdentity(t *testing.T) {
	store := newMemStore()
	boom := errors.New("boom")

	b := NewBuilder(Schema{})
	b.AddNode("a", func(ctx context.Context, s State) (*NodeResult, error) {
		return nil, boom
	})
	b.SetEntryPoint("a")
	b.AddEdge("a", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), State{}, "fail")
	var execErr *GraphExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "a", execErr.Node)
	assert.ErrorIs(t, err, boom)
}

func TestNodePanicBecomesError(t *testing.T) {
	store := newMemStore()
	b := NewBuilder(Schema{})
	b.AddNode("a", func(ctx context.Context, s State) (*NodeResult, error) {
		panic("unexpected")
	})
	b.SetEntryPoint("a")
	b.AddEdge("a", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), State{}, "panic")
	var execErr *GraphExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "panic")
}

func interruptGraph(t *testing.T, store CheckpointStore, emitted *int) *Graph {
	t.Helper()
	b := NewBuilder(Schema{})
	b.AddNode("prepare", setNode("plan", "the plan"))
	b.AddNode("gate", func(ctx context.Context, s State) (*NodeResult, error) {
		if v, ok := ResumeValue(ctx); ok {
			decision, _ := v.(string)
			return UpdateResult(State{"decision": decision, "pending": false}), nil
		}
		if !s.GetBool("pending") {
			*emitted++
			return SuspendWithUpdate(State{"pending": true}, map[string]any{"plan": s.GetString("plan")}), nil
		}
		return SuspendResult(map[string]any{"plan": s.GetString("plan")}), nil
	})
	b.AddNode("finish", setNode("finished", true))
	b.SetEntryPoint("prepare")
	b.AddEdge("prepare", "gate")
	b.AddConditionalEdges("gate", func(s State) string {
		if s.GetString("decision") == "approved" {
			return "go"
		}
		return "stop"
	}, map[string]string{"go": "finish", "stop": End})
	b.AddEdge("finish", End)

	g, err := b.Compile(store)
	require.NoError(t, err)
	return g
}

func TestInterruptAndResume(t *testing.T) {
	store := newMemStore()
	emitted := 0
	g := interruptGraph(t, store, &emitted)

	res, err := g.Invoke(context.Background(), State{}, "hitl")
	require.NoError(t, err)
	require.NotNil(t, res.Interrupt)
	assert.False(t, res.Done)
	assert.Equal(t, "gate", res.Interrupt.Node)
	assert.Equal(t, "the plan", res.Interrupt.Payload["plan"])
	assert.Equal(t, 1, emitted)

	// The checkpoint captured the suspended node and the guard flag.
	cp, err := store.Get(context.Background(), "hitl")
	require.NoError(t, err)
	assert.Equal(t, []string{"gate"}, cp.Next)
	assert.True(t, cp.State.GetBool("pending"))
	assert.Equal(t, "the plan", cp.State.GetString("plan"))

	resumed, err := g.Resume(context.Background(), "hitl", "approved")
	require.NoError(t, err)
	assert.True(t, resumed.Done)
	assert.True(t, resumed.State.GetBool("finished"))
	assert.Equal(t, "the plan", resumed.State.GetString("plan"))

	// The guard kept the side effect from repeating on re-entry.
	assert.Equal(t, 1, emitted)
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	store := newMemStore()
	emitted := 0
	g := interruptGraph(t, store, &emitted)

	_, err := g.Resume(context.Background(), "never-ran", "approved")
	assert.ErrorIs(t, err, core.ErrNothingToResume)
}

func TestResumeCompletedThread(t *testing.T) {
	store := newMemStore()
	emitted := 0
	g := interruptGraph(t, store, &emitted)

	_, err := g.Invoke(context.Background(), State{}, "done-thread")
	require.NoError(t, err)
	_, err = g.Resume(context.Background(), "done-thread", "rejected")
	require.NoError(t, err)

	_, err = g.Resume(context.Background(), "done-thread", "rejected")
	assert.ErrorIs(t, err, core.ErrNothingToResume)
}

func TestCancelAtSuperStepBoundaryThenResume(t *testing.T) {
	store := newMemStore()
	var aRuns, bRuns int

	b := NewBuilder(Schema{})
	b.AddNode("a", func(ctx context.Context, s State) (*NodeResult, error) {
		aRuns++
		return UpdateResult(State{"a": true}), nil
	})
	b.AddNode("b", func(ctx context.Context, s State) (*NodeResult, error) {
		bRuns++
		return UpdateResult(State{"b": true}), nil
	})
	b.SetEntryPoint("a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)

	ctx, cancel := context.WithCancel(context.Background())
	g, err := b.Compile(store)
	require.NoError(t, err)

	// Cancel while node a runs; the boundary check before b fires.
	b2 := g.nodes["a"].fn
	g.nodes["a"].fn = func(ctx context.Context, s State) (*NodeResult, error) {
		cancel()
		return b2(ctx, s)
	}

	_, err = g.Invoke(ctx, State{}, "cancel-thread")
	require.ErrorIs(t, err, core.ErrContextCanceled)
	assert.Equal(t, 1, aRuns)
	assert.Equal(t, 0, bRuns)

	// The last completed super-step is resumable, completed nodes do
	// not run again.
	res, err := g.ResumeFromCheckpoint(context.Background(), "cancel-thread")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.True(t, res.State.GetBool("a"))
	assert.True(t, res.State.GetBool("b"))
	assert.Equal(t, 1, aRuns)
	assert.Equal(t, 1, bRuns)
}

func TestStreamDeliversUpdatesLazily(t *testing.T) {
	store := newMemStore()
	b := NewBuilder(Schema{})
	b.AddNode("a", setNode("a", 1))
	b.AddNode("b", setNode("b", 2))
	b.SetEntryPoint("a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	var nodes []string
	var final *Result
	for step := range g.Stream(context.Background(), State{}, "stream") {
		require.NoError(t, step.Err)
		if step.Result != nil {
			final = step.Result
			continue
		}
		nodes = append(nodes, step.Node)
	}
	assert.Equal(t, []string{"a", "b"}, nodes)
	require.NotNil(t, final)
	assert.True(t, final.Done)
}

func TestCompileValidation(t *testing.T) {
	t.Run("missing entry point", func(t *testing.T) {
		b := NewBuilder(Schema{})
		b.AddNode("a", setNode("x", 1))
		b.AddEdge("a", End)
		_, err := b.Compile(newMemStore())
		assert.ErrorIs(t, err, core.ErrNoEntryPoint)
	})

	t.Run("unknown edge target", func(t *testing.T) {
		b := NewBuilder(Schema{})
		b.AddNode("a", setNode("x", 1))
		b.SetEntryPoint("a")
		b.AddEdge("a", "ghost")
		_, err := b.Compile(newMemStore())
		assert.ErrorIs(t, err, core.ErrNodeNotFound)
	})

	t.Run("duplicate node", func(t *testing.T) {
		b := NewBuilder(Schema{})
		b.AddNode("a", setNode("x", 1))
		b.AddNode("a", setNode("x", 2))
		b.SetEntryPoint("a")
		_, err := b.Compile(newMemStore())
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrDuplicateNode)
	})
}

func TestInterruptWithCompletedSiblingKeepsItsSuccessor(t *testing.T) {
	store := newMemStore()
	var afterRuns int

	gate := func(ctx context.Context, s State) (*NodeResult, error) {
		if v, ok := ResumeValue(ctx); ok {
			return UpdateResult(State{"answer": v}), nil
		}
		return SuspendResult(map[string]any{"waiting": true}), nil
	}
	after := func(ctx context.Context, s State) (*NodeResult, error) {
		afterRuns++
		return UpdateResult(State{"after": true}), nil
	}

	b := NewBuilder(Schema{})
	b.AddNode("start", setNode("started", true))
	b.AddNode("gate", gate)
	b.AddNode("work", setNode("worked", true))
	b.AddNode("after", after)
	b.SetEntryPoint("start")
	b.AddEdge("start", "gate")
	b.AddEdge("start", "work")
	b.AddEdge("gate", End)
	b.AddEdge("work", "after")
	b.AddEdge("after", End)

	g, err := b.Compile(store)
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), State{}, "t1")
	require.NoError(t, err)
	require.NotNil(t, res.Interrupt)
	assert.True(t, res.State.GetBool("worked"))

	// The completed sibling's successor stays on the resume frontier
	// next to the suspended node.
	cp, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gate", "after"}, cp.Next)

	resumed, err := g.Resume(context.Background(), "t1", "yes")
	require.NoError(t, err)
	assert.True(t, resumed.Done)
	assert.Equal(t, "yes", resumed.State.GetString("answer"))
	assert.True(t, resumed.State.GetBool("after"))
	assert.Equal(t, 1, afterRuns)
}

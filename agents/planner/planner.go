// Package planner turns a user request into a reviewed PlanDocument.
// The planner is itself a small graph: a reasoning loop that may call
// clinical tools, followed by a drafting step that emits the typed
// plan. Revisions re-run the loop with the prior plan and the human
// feedback in context, and prior list items are preserved structurally
// rather than by prompt trust.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/checkpoint"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
	"github.com/naveenvasou/cerina-v0/tools"
)

// Agent plans exercises.
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	emitter  events.Emitter
	logger   core.Logger
	cfg      *core.Config
}

// New creates a planner Agent.
func New(provider llm.Provider, registry *tools.Registry, emitter events.Emitter, logger core.Logger, cfg *core.Config) *Agent {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	return &Agent{provider: provider, registry: registry, emitter: emitter, logger: logger, cfg: cfg}
}

// Sub-state fields of the planning loop.
const (
	fieldMessages   = "messages"
	fieldScratchpad = "scratchpad"
	fieldRound      = "round"
	fieldPending    = "pending_tools"
	fieldPlan       = "plan"
)

func subSchema() graph.Schema {
	return graph.Schema{
		fieldMessages:   {Policy: graph.Append},
		fieldScratchpad: {Policy: graph.Concat},
	}
}

// Invoke plans (or re-plans) for the current query and returns the
// typed plan plus the user-facing preview message.
func (a *Agent) Invoke(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NamePlanner))

	query := s.GetString(agents.KeyQuery)

	var prevPlan *PlanDocument
	feedback := s.GetString(agents.KeyHITLFeedback)
	if s.GetString(agents.KeyHITLDecision) == agents.DecisionRevised {
		var prev PlanDocument
		if err := graph.DecodeField(s, agents.KeyPlan, &prev); err == nil {
			prevPlan = &prev
		}
	}

	plan, scratchpad, err := a.runLoop(ctx, query, prevPlan, feedback)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	if prevPlan != nil {
		plan = MergeRevision(prevPlan, plan, feedback)
	}

	a.emitter.Emit(events.AgentMemory(agents.NamePlanner, scratchpad))
	a.emitter.Emit(events.Message(agents.NamePlanner, plan.UserPreview))

	update := graph.State{
		agents.KeyMessages: []any{map[string]any{
			"role":    "assistant",
			"content": plan.UserPreview,
		}},
	}
	if err := graph.EncodeField(update, agents.KeyPlan, plan); err != nil {
		return nil, err
	}
	return graph.UpdateResult(update), nil
}

// runLoop executes the reason/act/draft sub-graph to completion.
func (a *Agent) runLoop(ctx context.Context, query string, prevPlan *PlanDocument, feedback string) (*PlanDocument, string, error) {
	b := graph.NewBuilder(subSchema())
	b.AddNode("reason", a.reasonNode())
	b.AddNode("act", a.actNode())
	b.AddNode("draft", a.draftNode(query, prevPlan, feedback))
	b.SetEntryPoint("reason")
	b.AddConditionalEdges("reason", func(s graph.State) string {
		if len(s.GetList(fieldPending)) > 0 && s.GetInt(fieldRound) < a.cfg.PlannerToolCallLimit {
			return "act"
		}
		return "draft"
	}, map[string]string{"act": "act", "draft": "draft"})
	b.AddEdge("act", "reason")
	b.AddEdge("draft", graph.End)

	g, err := b.Compile(checkpoint.NewMemoryStore(), graph.WithName("planner"), graph.WithLogger(a.logger))
	if err != nil {
		return nil, "", err
	}

	initial := graph.State{
		fieldMessages: []any{map[string]any{
			"role":    "user",
			"content": query,
		}},
	}
	res, err := g.Invoke(ctx, initial, "planner/"+uuid.NewString())
	if err != nil {
		return nil, "", err
	}

	var plan PlanDocument
	if err := graph.DecodeField(res.State, fieldPlan, &plan); err != nil {
		return nil, "", err
	}
	return &plan, res.State.GetString(fieldScratchpad), nil
}

const reasonPrompt = `You are the planning specialist for a CBT exercise studio.
Think through what this exercise needs: target mechanism, evidence base,
safety considerations, tone. You may call tools to ground your plan:
%s
To call a tool, respond with a tool call. When your research is
complete, summarize your conclusions in plain text instead.`

func (a *Agent) reasonNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		round := s.GetInt(fieldRound) + 1

		req := &llm.Request{
			Model:    a.cfg.ReasoningModel,
			System:   fmt.Sprintf(reasonPrompt, strings.Join(a.registry.Names(), ", ")),
			Messages: decodeMessages(s.GetList(fieldMessages)),
			Tools:    a.toolSpecs(),
		}

		stream, err := a.provider.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		resp, err := llm.Accumulate(ctx, stream, func(chunk llm.Chunk) {
			if chunk.Text != "" {
				a.emitter.Emit(events.ThoughtChunk(agents.NamePlanner, chunk.Text))
			}
		})
		if err != nil {
			return nil, err
		}
		a.emitter.Emit(events.Thought(agents.NamePlanner, resp.Content))

		update := graph.State{
			fieldRound:      round,
			fieldScratchpad: fmt.Sprintf("\n## Reasoning round %d\n%s\n", round, resp.Content),
			fieldMessages: []any{map[string]any{
				"role":    "assistant",
				"content": resp.Content,
			}},
		}
		if err := graph.EncodeField(update, fieldPending, resp.ToolCalls); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

func (a *Agent) actNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var calls []llm.ToolCall
		if err := graph.DecodeField(s, fieldPending, &calls); err != nil {
			return nil, err
		}

		var observations []any
		for _, call := range calls {
			a.emitter.Emit(events.ToolCall(agents.NamePlanner, call.Name, call.Args))
			out := a.registry.Call(ctx, call.Name, call.Args)
			a.emitter.Emit(events.ToolResult(agents.NamePlanner, call.Name, out))
			observations = append(observations, map[string]any{
				"role":    "tool",
				"name":    call.Name,
				"content": out,
			})
		}

		return graph.UpdateResult(graph.State{
			fieldMessages: observations,
			fieldPending:  []any{},
		}), nil
	}
}

const draftPrompt = `Produce the final exercise plan as JSON with exactly this shape:
{"exercise_type": "...", "drafting_spec": {"task_constraints": [...], "style_rules": [...]},
 "safety_envelope": {"forbidden_content": [...], "special_conditions": [...]},
 "critic_rubrics": {"safety": "...", "clinical_accuracy": "...", "usability": "..."},
 "evidence_anchors": [{"source": "...", "note": "..."}],
 "user_preview": "..."}
Include two or three evidence anchors. The user_preview is a short,
warm summary a non-clinician can approve. Respond with JSON only.`

const revisionPrompt = `The human reviewed the previous plan and asked for changes.
Previous plan:
%s

Feedback: %s

Revise the plan. Keep everything that was not questioned; revision is
additive unless the feedback explicitly asks for removal.`

func (a *Agent) draftNode(query string, prevPlan *PlanDocument, feedback string) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "User request: %s\n\nResearch notes:%s\n", query, s.GetString(fieldScratchpad))
		if prevPlan != nil {
			prevJSON, _ := encodeJSON(prevPlan)
			fmt.Fprintf(&sb, "\n"+revisionPrompt+"\n", prevJSON, feedback)
		}

		plan, err := a.generatePlan(ctx, sb.String())
		if err != nil {
			// One structured retry with the parse failure in context.
			a.logger.Warn("Plan parse failed, retrying once", map[string]interface{}{
				"error": err.Error(),
			})
			plan, err = a.generatePlan(ctx, sb.String()+
				fmt.Sprintf("\nYour previous attempt was rejected: %v. Respond with valid JSON only.", err))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrMalformedOutput, err)
			}
		}

		update := graph.State{}
		if err := graph.EncodeField(update, fieldPlan, plan); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

func (a *Agent) generatePlan(ctx context.Context, userContent string) (*PlanDocument, error) {
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:    a.cfg.DraftingModel,
		System:   draftPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: userContent}},
	})
	if err != nil {
		return nil, err
	}
	var plan PlanDocument
	if err := llm.ParseJSON(resp.Content, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (a *Agent) toolSpecs() []llm.ToolSpec {
	names := a.registry.Names()
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, llm.ToolSpec{Name: name})
	}
	return specs
}

func decodeMessages(raw []any) []llm.Message {
	msgs := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		name, _ := m["name"].(string)
		msgs = append(msgs, llm.Message{Role: llm.Role(role), Content: content, Name: name})
	}
	return msgs
}

func encodeJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package workflow wires the stage agents into the top-level exercise
// generation graph and drives runs through the Runner: start, stream,
// suspend for plan approval, resume, stop, resume from checkpoint.
package workflow

import (
	"context"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/agents/critic"
	"github.com/naveenvasou/cerina-v0/agents/draftsman"
	"github.com/naveenvasou/cerina-v0/agents/planner"
	"github.com/naveenvasou/cerina-v0/agents/reviser"
	"github.com/naveenvasou/cerina-v0/agents/router"
	"github.com/naveenvasou/cerina-v0/agents/synthesizer"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
	"github.com/naveenvasou/cerina-v0/tools"
)

// Node names of the top-level graph.
const (
	NodeRouter        = "router"
	NodeRespond       = "respond"
	NodePlanner       = "planner"
	NodeAwaitApproval = "await_plan_approval"
	NodeDraftsman     = "draftsman"
	NodeCritic        = "critic"
	NodeReviser       = "reviser"
	NodeSynthesizer   = "synthesizer"
)

// StateSchema declares the merge policy for every workflow state
// field. Fields not listed default to last-write.
func StateSchema() graph.Schema {
	return graph.Schema{
		agents.KeyMessages:           {Policy: graph.Append},
		agents.KeyDraftVersions:      {Policy: graph.Append},
		agents.KeyInternalMessages:   {Policy: graph.Append},
		agents.KeyInternalScratchpad: {Policy: graph.Concat},
	}
}

// Deps collects everything the graph needs. Emitter is per run.
type Deps struct {
	Provider    llm.Provider
	Tools       *tools.Registry
	Emitter     events.Emitter
	Logger      core.Logger
	Config      *core.Config
	Checkpoints graph.CheckpointStore
}

// Build compiles the top-level graph.
func Build(deps Deps) (*graph.Graph, error) {
	if deps.Logger == nil {
		deps.Logger = &core.NoOpLogger{}
	}
	if deps.Config == nil {
		deps.Config = core.DefaultConfig()
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NoopEmitter{}
	}

	routerAgent := router.New(deps.Provider, deps.Emitter, deps.Logger)
	plannerAgent := planner.New(deps.Provider, deps.Tools, deps.Emitter, deps.Logger, deps.Config)
	draftsmanAgent := draftsman.New(deps.Provider, deps.Emitter, deps.Logger, deps.Config)
	criticAgent := critic.New(deps.Provider, deps.Emitter, deps.Logger, deps.Config)
	reviserAgent := reviser.New(deps.Provider, deps.Emitter, deps.Logger, deps.Config)
	synthAgent := synthesizer.New(deps.Provider, deps.Emitter, deps.Logger, deps.Config)

	b := graph.NewBuilder(StateSchema())
	b.AddNode(NodeRouter, routerAgent.Classify)
	b.AddNode(NodeRespond, routerAgent.Respond)
	b.AddNode(NodePlanner, plannerAgent.Invoke)
	b.AddNode(NodeAwaitApproval, awaitApprovalNode(deps.Emitter, deps.Logger))
	b.AddNode(NodeDraftsman, draftsmanAgent.Invoke)
	b.AddNode(NodeCritic, criticAgent.Invoke)
	b.AddNode(NodeReviser, reviserAgent.Invoke)
	b.AddNode(NodeSynthesizer, synthAgent.Invoke)

	b.SetEntryPoint(NodeRouter)
	b.AddConditionalEdges(NodeRouter, routeDecision, map[string]string{
		agents.RouteConversation: NodeRespond,
		agents.RoutePlanner:      NodePlanner,
		agents.RouteDraftsman:    NodeDraftsman,
	})
	b.AddEdge(NodeRespond, graph.End)
	b.AddEdge(NodePlanner, NodeAwaitApproval)
	b.AddConditionalEdges(NodeAwaitApproval, routeAfterApproval, map[string]string{
		agents.DecisionApproved: NodeDraftsman,
		agents.DecisionRevised:  NodePlanner,
		agents.DecisionRejected: graph.End,
	})
	b.AddEdge(NodeDraftsman, NodeCritic)
	b.AddConditionalEdges(NodeCritic, shouldContinueReflection, map[string]string{
		"revise":     NodeReviser,
		"synthesize": NodeSynthesizer,
	})
	b.AddEdge(NodeReviser, NodeCritic)
	b.AddEdge(NodeSynthesizer, graph.End)

	return b.Compile(deps.Checkpoints,
		graph.WithName("exercise_workflow"),
		graph.WithLogger(deps.Logger),
	)
}

// routeDecision dispatches on the router's classification. The
// draftsman route needs a plan in state; without one it degrades to
// the planner route rather than a node failure.
func routeDecision(s graph.State) string {
	switch s.GetString(agents.KeyRoute) {
	case agents.RouteConversation:
		return agents.RouteConversation
	case agents.RouteDraftsman:
		if _, ok := s[agents.KeyPlan]; ok {
			return agents.RouteDraftsman
		}
		return agents.RoutePlanner
	default:
		return agents.RoutePlanner
	}
}

// routeAfterApproval dispatches on the resumed human decision.
func routeAfterApproval(s graph.State) string {
	switch s.GetString(agents.KeyHITLDecision) {
	case agents.DecisionApproved:
		return agents.DecisionApproved
	case agents.DecisionRevised:
		return agents.DecisionRevised
	default:
		return agents.DecisionRejected
	}
}

// shouldContinueReflection keeps the critique/revise loop going until
// the board approves or the iteration budget is spent.
func shouldContinueReflection(s graph.State) string {
	if consolidated, ok := s[agents.KeyConsolidatedCritique].(map[string]any); ok {
		if approved, _ := consolidated["overall_approved"].(bool); approved {
			return "synthesize"
		}
	}
	iteration := s.GetInt(agents.KeyReflectionIteration)
	max := s.GetInt(agents.KeyMaxIterations)
	if max > 0 && iteration > max {
		return "synthesize"
	}
	return "revise"
}

// awaitApprovalNode suspends the run until a human answers the plan.
// The node is re-entered from the top on resume, so the pending flag
// in state keeps the approval request from being emitted twice.
func awaitApprovalNode(emitter events.Emitter, logger core.Logger) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		if v, ok := graph.ResumeValue(ctx); ok {
			return applyDecision(s, v, logger)
		}

		plan, _ := s[agents.KeyPlan].(map[string]any)
		preview := ""
		if plan != nil {
			preview, _ = plan["user_preview"].(string)
		}
		payload := map[string]any{
			"plan":    plan,
			"preview": preview,
		}

		if !s.GetBool(agents.KeyHITLPending) {
			emitter.Emit(events.PlanPendingApproval(agents.NamePlanner, preview, payload))
			logger.Info("Plan awaiting approval", map[string]interface{}{
				"revision_count": s.GetInt(agents.KeyPlanRevisionCount),
			})
			return graph.SuspendWithUpdate(graph.State{
				agents.KeyHITLPending: true,
			}, payload), nil
		}

		// Already pending: a re-entry without a resume value, as after
		// a process restart. Suspend again without re-emitting.
		return graph.SuspendResult(payload), nil
	}
}

func applyDecision(s graph.State, v any, logger core.Logger) (*graph.NodeResult, error) {
	decision := agents.DecisionRejected
	feedback := ""
	if m, ok := v.(map[string]any); ok {
		if d, ok := m["decision"].(string); ok {
			decision = d
		}
		feedback, _ = m["feedback"].(string)
	}
	switch decision {
	case agents.DecisionApproved, agents.DecisionRevised, agents.DecisionRejected:
	default:
		logger.Warn("Unknown approval decision treated as rejection", map[string]interface{}{
			"decision": decision,
		})
		decision = agents.DecisionRejected
	}

	update := graph.State{
		agents.KeyHITLDecision: decision,
		agents.KeyHITLFeedback: feedback,
		agents.KeyHITLPending:  false,
	}
	if decision == agents.DecisionRevised {
		update[agents.KeyPlanRevisionCount] = s.GetInt(agents.KeyPlanRevisionCount) + 1
	}

	logger.Info("Approval decision received", map[string]interface{}{
		"decision": decision,
	})
	return graph.UpdateResult(update), nil
}

// Package reviser produces the next draft version from the
// consolidated critique. Each invocation advances the reflection
// iteration exactly once, whether or not the revision itself
// succeeded, so the loop can never stall.
package reviser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/agents/critic"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

// Agent revises drafts.
type Agent struct {
	provider llm.Provider
	emitter  events.Emitter
	logger   core.Logger
	cfg      *core.Config
}

// New creates a reviser Agent.
func New(provider llm.Provider, emitter events.Emitter, logger core.Logger, cfg *core.Config) *Agent {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	return &Agent{provider: provider, emitter: emitter, logger: logger, cfg: cfg}
}

const revisePrompt = `You are the revision author for CBT exercises. Rewrite the
draft to address every action item in the critique. Produce the
complete revised exercise, not a diff. Keep everything the critique
did not question. Output the revised exercise only.`

const changesPrompt = `Summarize in one or two sentences what changed between the
previous draft and the revision. Plain text only.`

// Invoke rewrites the current draft against the consolidated critique.
func (a *Agent) Invoke(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NameReviser))

	iteration := s.GetInt(agents.KeyReflectionIteration)
	current := s.GetString(agents.KeyCurrentDraft)

	var consolidated critic.ConsolidatedCritique
	if err := graph.DecodeField(s, agents.KeyConsolidatedCritique, &consolidated); err != nil {
		return nil, fmt.Errorf("reviser needs a consolidated critique: %w", err)
	}

	a.emitter.Emit(events.ReflectionStatus(agents.NameReviser,
		fmt.Sprintf("Revising draft, iteration %d", iteration), iteration))

	revised, err := a.revise(ctx, current, &consolidated)
	if err != nil {
		// A failed revision keeps the current draft; the iteration
		// still advances so the loop terminates.
		a.logger.Error("Revision failed, keeping current draft", map[string]interface{}{
			"iteration": iteration,
			"error":     err.Error(),
		})
		a.emitter.Emit(events.Status(agents.NameReviser, "Revision failed, keeping previous draft"))
		return graph.UpdateResult(graph.State{
			agents.KeyReflectionIteration: iteration + 1,
		}), nil
	}

	versions := s.GetList(agents.KeyDraftVersions)
	version := len(versions) + 1

	changes := a.summarizeChanges(ctx, current, revised)

	a.emitter.Emit(events.DraftUpdated(agents.NameReviser, revised, version, iteration))

	update := graph.State{
		agents.KeyCurrentDraft:        revised,
		agents.KeyDraft:               revised,
		agents.KeyReflectionIteration: iteration + 1,
	}
	if err := graph.EncodeField(update, agents.KeyDraftVersions, []agents.DraftVersion{{
		Version:   version,
		Content:   revised,
		Timestamp: time.Now().UTC(),
		Status:    agents.DraftStatusRevised,
		Iteration: iteration,
		Changes:   changes,
	}}); err != nil {
		return nil, err
	}
	return graph.UpdateResult(update), nil
}

func (a *Agent) revise(ctx context.Context, current string, consolidated *critic.ConsolidatedCritique) (string, error) {
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:  a.cfg.DraftingModel,
		System: revisePrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Critique:\n%s\n\nCurrent draft:\n%s", consolidated.ToMarkdown(0), current),
		}},
	})
	if err != nil {
		return "", err
	}
	revised := strings.TrimSpace(resp.Content)
	if revised == "" {
		return "", fmt.Errorf("%w: empty revision", core.ErrMalformedOutput)
	}
	return revised, nil
}

func (a *Agent) summarizeChanges(ctx context.Context, previous, revised string) string {
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:  a.cfg.ReasoningModel,
		System: changesPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Previous:\n%s\n\nRevised:\n%s", previous, revised),
		}},
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return "Revised to address the consolidated critique."
	}
	return strings.TrimSpace(resp.Content)
}

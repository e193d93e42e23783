// Package synthesizer performs the final formatting pass over an
// approved (or iteration-capped) draft. It changes presentation, never
// substance; a formatting failure falls back to the unformatted draft
// so the user always receives the exercise.
package synthesizer

import (
	"context"
	"strings"
	"time"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

// Agent formats final drafts.
type Agent struct {
	provider llm.Provider
	emitter  events.Emitter
	logger   core.Logger
	cfg      *core.Config
}

// New creates a synthesizer Agent.
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

const formatPrompt = `You are the presentation editor for CBT exercises. Format the
exercise below for delivery to the end user: clean markdown, gentle
headings, numbered steps where steps exist. Do not add, remove, or
reword substantive content. Output the formatted exercise only.`

// Invoke formats the current draft and records the final version.
func (a *Agent) Invoke(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NameSynthesizer))

	draft := s.GetString(agents.KeyCurrentDraft)
	iteration := s.GetInt(agents.KeyReflectionIteration)

	formatted := draft
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:    a.cfg.DraftingModel,
		System:   formatPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: draft}},
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		a.logger.Warn("Formatting pass failed, delivering unformatted draft", map[string]interface{}{
			"error": errString(err),
		})
	} else {
		formatted = strings.TrimSpace(resp.Content)
	}

	versions := s.GetList(agents.KeyDraftVersions)
	version := len(versions) + 1

	a.emitter.Emit(events.Artifact(agents.NameSynthesizer, "final_exercise", "", formatted, version))
	a.emitter.Emit(events.Message(agents.NameSynthesizer, "Your exercise is ready."))

	update := graph.State{
		agents.KeyFinalPresentation: formatted,
		agents.KeyMessages: []any{map[string]any{
			"role":    "assistant",
			"content": "Your exercise is ready.",
		}},
	}
	if err := graph.EncodeField(update, agents.KeyDraftVersions, []agents.DraftVersion{{
		Version:   version,
		Content:   formatted,
		Timestamp: time.Now().UTC(),
		Status:    agents.DraftStatusFinal,
		Iteration: iteration,
	}}); err != nil {
		return nil, err
	}
	return graph.UpdateResult(update), nil
}

func errString(err error) string {
	if err == nil {
		return "empty output"
	}
	return err.Error()
}

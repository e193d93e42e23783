// Package draftsman turns an approved plan into the first complete
// draft. Drafting is a sequential sub-graph: decompose the plan into a
// protocol contract, map target mechanisms, freeze a section skeleton,
// fill sections one at a time, then assemble by concatenation. A
// failed section gets a visible placeholder; the draft always
// completes.
package draftsman

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/agents/planner"
	"github.com/naveenvasou/cerina-v0/checkpoint"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

// Agent drafts exercises from plans.
type Agent struct {
	provider llm.Provider
	emitter  events.Emitter
	logger   core.Logger
	cfg      *core.Config
}

// New creates a draftsman Agent.
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

// Sub-state fields of the drafting pipeline.
const (
	fieldContract   = "contract"
	fieldMechanisms = "mechanisms"
	fieldSkeleton   = "skeleton"
	fieldSections   = "sections"
	fieldLoopCount  = "loop_count"
	fieldDraft      = "draft"
)

func subSchema() graph.Schema {
	return graph.Schema{
		fieldSections: {Policy: graph.Append},
	}
}

// Invoke produces draft v1 and seeds the reflection loop counters.
func (a *Agent) Invoke(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NameDraftsman))

	var plan planner.PlanDocument
	if err := graph.DecodeField(s, agents.KeyPlan, &plan); err != nil {
		return nil, fmt.Errorf("draftsman needs a plan: %w", err)
	}

	contract := contractFromPlan(&plan)

	draft, err := a.runPipeline(ctx, contract, &plan)
	if err != nil {
		return nil, fmt.Errorf("drafting failed: %w", err)
	}

	a.emitter.Emit(events.DraftUpdated(agents.NameDraftsman, draft, 1, 1))
	a.emitter.Emit(events.Artifact(agents.NameDraftsman, "exercise_draft", plan.ExerciseType, draft, 1))

	update := graph.State{
		agents.KeyDraft:               draft,
		agents.KeyCurrentDraft:        draft,
		agents.KeyReflectionIteration: 1,
		agents.KeyMaxIterations:       a.cfg.MaxReflectionIterations,
	}
	if err := graph.EncodeField(update, agents.KeyProtocolContract, contract); err != nil {
		return nil, err
	}
	if err := graph.EncodeField(update, agents.KeyDraftVersions, []agents.DraftVersion{{
		Version:   1,
		Content:   draft,
		Timestamp: time.Now().UTC(),
		Status:    agents.DraftStatusInitial,
		Iteration: 1,
	}}); err != nil {
		return nil, err
	}
	return graph.UpdateResult(update), nil
}

// contractFromPlan is a deterministic reshaping; the plan already
// carries everything the contract needs.
func contractFromPlan(plan *planner.PlanDocument) *ProtocolContract {
	return &ProtocolContract{
		ExerciseType:      plan.ExerciseType,
		ClinicalRubric:    plan.CriticRubrics.ClinicalAccuracy,
		TaskConstraints:   plan.DraftingSpec.TaskConstraints,
		StyleRules:        plan.DraftingSpec.StyleRules,
		ForbiddenContent:  plan.SafetyEnvelope.ForbiddenContent,
		SpecialConditions: plan.SafetyEnvelope.SpecialConditions,
	}
}

func (a *Agent) runPipeline(ctx context.Context, contract *ProtocolContract, plan *planner.PlanDocument) (string, error) {
	b := graph.NewBuilder(subSchema())
	b.AddNode("mechanisms", a.mechanismsNode(contract, plan))
	b.AddNode("skeleton", a.skeletonNode(contract))
	b.AddNode("section", a.sectionNode(contract))
	b.AddNode("assemble", a.assembleNode())
	b.SetEntryPoint("mechanisms")
	b.AddEdge("mechanisms", "skeleton")
	b.AddEdge("skeleton", "section")
	b.AddConditionalEdges("section", func(s graph.State) string {
		var skeleton ExerciseSkeleton
		if err := graph.DecodeField(s, fieldSkeleton, &skeleton); err != nil {
			return "assemble"
		}
		done := len(s.GetList(fieldSections))
		if done < len(skeleton.Sections) && s.GetInt(fieldLoopCount) < a.cfg.SectionLoopCeiling {
			return "section"
		}
		return "assemble"
	}, map[string]string{"section": "section", "assemble": "assemble"})
	b.AddEdge("assemble", graph.End)

	g, err := b.Compile(checkpoint.NewMemoryStore(), graph.WithName("draftsman"), graph.WithLogger(a.logger))
	if err != nil {
		return "", err
	}

	initial := graph.State{}
	if err := graph.EncodeField(initial, fieldContract, contract); err != nil {
		return "", err
	}
	res, err := g.Invoke(ctx, initial, "draftsman/"+uuid.NewString())
	if err != nil {
		return "", err
	}
	return res.State.GetString(fieldDraft), nil
}

const mechanismsPrompt = `You design CBT exercises. Given the protocol contract and
evidence anchors below, identify the target psychological mechanisms.
Respond with JSON only:
{"target_mechanisms": [{"name": "...", "rationale": "...", "engagement_method": "..."}]}`

func (a *Agent) mechanismsNode(contract *ProtocolContract, plan *planner.PlanDocument) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		a.emitter.Emit(events.Status(agents.NameDraftsman, "Mapping target mechanisms"))

		prompt := fmt.Sprintf("Contract:\n%s\n\nEvidence anchors:\n%s",
			mustJSON(contract), mustJSON(plan.EvidenceAnchors))

		var mm MechanismMap
		err := a.generateTyped(ctx, mechanismsPrompt, prompt, &mm, func() error { return mm.Validate() })
		if err != nil {
			return nil, err
		}

		update := graph.State{}
		if err := graph.EncodeField(update, fieldMechanisms, &mm); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

const skeletonPrompt = `Design the structure of this CBT exercise. Respond with JSON only:
{"title": "...", "sections": [{"id": "...", "name": "...", "purpose": "...",
 "constraints": {"max_words": 0, "must_include": [...], "tone": "..."}}]}
The skeleton is frozen after this step; choose sections deliberately.`

func (a *Agent) skeletonNode(contract *ProtocolContract) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		a.emitter.Emit(events.Status(agents.NameDraftsman, "Designing exercise skeleton"))

		var mm MechanismMap
		_ = graph.DecodeField(s, fieldMechanisms, &mm)

		prompt := fmt.Sprintf("Contract:\n%s\n\nMechanisms:\n%s", mustJSON(contract), mustJSON(&mm))

		var skeleton ExerciseSkeleton
		err := a.generateTyped(ctx, skeletonPrompt, prompt, &skeleton, func() error { return skeleton.Validate() })
		if err != nil {
			return nil, err
		}

		update := graph.State{}
		if err := graph.EncodeField(update, fieldSkeleton, &skeleton); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

const sectionPrompt = `Write one section of a CBT exercise. Honor the section's
constraints and the protocol contract exactly. Output the section prose
only, no JSON, no commentary.`

func (a *Agent) sectionNode(contract *ProtocolContract) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var skeleton ExerciseSkeleton
		if err := graph.DecodeField(s, fieldSkeleton, &skeleton); err != nil {
			return nil, err
		}
		idx := len(s.GetList(fieldSections))
		if idx >= len(skeleton.Sections) {
			return graph.UpdateResult(graph.State{fieldLoopCount: s.GetInt(fieldLoopCount) + 1}), nil
		}
		spec := skeleton.Sections[idx]

		a.emitter.Emit(events.Status(agents.NameDraftsman,
			fmt.Sprintf("Drafting section %d/%d: %s", idx+1, len(skeleton.Sections), spec.Name)))

		prompt := fmt.Sprintf("Contract:\n%s\n\nSection spec:\n%s", mustJSON(contract), mustJSON(spec))
		resp, err := a.provider.Generate(ctx, &llm.Request{
			Model:    a.cfg.DraftingModel,
			System:   sectionPrompt,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})

		content := ""
		if err != nil {
			// A failed section must not sink the draft.
			a.logger.Warn("Section drafting failed, inserting placeholder", map[string]interface{}{
				"section": spec.ID,
				"error":   err.Error(),
			})
			content = fmt.Sprintf("[Section %q could not be drafted and needs manual attention.]", spec.Name)
		} else {
			content = strings.TrimSpace(resp.Content)
		}

		update := graph.State{
			fieldLoopCount: s.GetInt(fieldLoopCount) + 1,
		}
		if err := graph.EncodeField(update, fieldSections, []SectionDraft{{SectionID: spec.ID, Content: content}}); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

// assembleNode concatenates completed sections in skeleton order.
// No model call: assembly is deterministic by contract.
func (a *Agent) assembleNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var skeleton ExerciseSkeleton
		if err := graph.DecodeField(s, fieldSkeleton, &skeleton); err != nil {
			return nil, err
		}
		var sections []SectionDraft
		if err := graph.DecodeField(s, fieldSections, &sections); err != nil {
			return nil, err
		}
		byID := make(map[string]string, len(sections))
		for _, sec := range sections {
			byID[sec.SectionID] = sec.Content
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s\n", skeleton.Title)
		for _, spec := range skeleton.Sections {
			content, ok := byID[spec.ID]
			if !ok {
				content = fmt.Sprintf("[Section %q missing.]", spec.Name)
			}
			fmt.Fprintf(&sb, "\n## %s\n\n%s\n", spec.Name, content)
		}

		return graph.UpdateResult(graph.State{fieldDraft: sb.String()}), nil
	}
}

// generateTyped calls the provider and parses into out, retrying once
// with the failure in context.
func (a *Agent) generateTyped(ctx context.Context, system, user string, out any, validate func() error) error {
	attempt := func(content string) error {
		resp, err := a.provider.Generate(ctx, &llm.Request{
			Model:    a.cfg.DraftingModel,
			System:   system,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: content}},
		})
		if err != nil {
			return err
		}
		if err := llm.ParseJSON(resp.Content, out); err != nil {
			return err
		}
		return validate()
	}

	if err := attempt(user); err != nil {
		a.logger.Warn("Structured output rejected, retrying once", map[string]interface{}{
			"error": err.Error(),
		})
		if err := attempt(user + fmt.Sprintf("\n\nYour previous attempt was rejected: %v. Respond with valid JSON only.", err)); err != nil {
			return fmt.Errorf("%w: %v", core.ErrMalformedOutput, err)
		}
	}
	return nil
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}

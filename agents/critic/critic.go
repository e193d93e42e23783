// Package critic reviews a draft through three evaluators running in
// true parallel: safety, clinical accuracy, and tone. A consolidator
// merges their verdicts after the barrier. Failure posture is
// asymmetric by design of the review: safety and clinical evaluators
// fail closed, the tone evaluator fails open.
package critic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/agents/planner"
	"github.com/naveenvasou/cerina-v0/checkpoint"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

// Agent critiques drafts.
type Agent struct {
	provider llm.Provider
	emitter  events.Emitter
	logger   core.Logger
	cfg      *core.Config
}

// New creates a critic Agent.
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

// Sub-state fields of the review board.
const (
	fieldDraft        = "draft"
	fieldRubrics      = "rubrics"
	fieldSafety       = "safety"
	fieldClinical     = "clinical"
	fieldTone         = "tone"
	fieldConsolidated = "consolidated"
	fieldMessages     = "internal_messages"
	fieldScratchpad   = "internal_scratchpad"
)

func subSchema() graph.Schema {
	return graph.Schema{
		fieldMessages:   {Policy: graph.Append},
		fieldScratchpad: {Policy: graph.Concat},
	}
}

// Invoke reviews the current draft and writes the three critiques plus
// the consolidated verdict into workflow state.
func (a *Agent) Invoke(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NameCritic))

	draft := s.GetString(agents.KeyCurrentDraft)
	iteration := s.GetInt(agents.KeyReflectionIteration)

	var plan planner.PlanDocument
	_ = graph.DecodeField(s, agents.KeyPlan, &plan)

	res, err := a.runBoard(ctx, draft, &plan.CriticRubrics)
	if err != nil {
		return nil, fmt.Errorf("critique failed: %w", err)
	}

	var consolidated ConsolidatedCritique
	if err := graph.DecodeField(res.State, fieldConsolidated, &consolidated); err != nil {
		return nil, err
	}

	a.emitter.Emit(events.CritiqueDocument(agents.NameCritic, consolidated.ToMarkdown(iteration), iteration))

	update := graph.State{
		agents.KeyInternalMessages:   res.State[fieldMessages],
		agents.KeyInternalScratchpad: res.State.GetString(fieldScratchpad),
	}
	for sub, parent := range map[string]string{
		fieldSafety:       agents.KeySafetyCritique,
		fieldClinical:     agents.KeyClinicalCritique,
		fieldTone:         agents.KeyToneCritique,
		fieldConsolidated: agents.KeyConsolidatedCritique,
	} {
		update[parent] = res.State[sub]
	}
	return graph.UpdateResult(update), nil
}

// runBoard executes dispatch, the three parallel evaluators, and the
// consolidator. The engine's super-step barrier is the fan-in.
func (a *Agent) runBoard(ctx context.Context, draft string, rubrics *planner.CriticRubrics) (*graph.Result, error) {
	b := graph.NewBuilder(subSchema())
	b.AddNode("dispatch", func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		return graph.UpdateResult(nil), nil
	})
	b.AddNode("safety", a.safetyNode())
	b.AddNode("clinical", a.clinicalNode())
	b.AddNode("tone", a.toneNode())
	b.AddNode("consolidate", a.consolidateNode())
	b.SetEntryPoint("dispatch")
	b.AddEdge("dispatch", "safety")
	b.AddEdge("dispatch", "clinical")
	b.AddEdge("dispatch", "tone")
	b.AddEdge("safety", "consolidate")
	b.AddEdge("clinical", "consolidate")
	b.AddEdge("tone", "consolidate")
	b.AddEdge("consolidate", graph.End)

	g, err := b.Compile(checkpoint.NewMemoryStore(), graph.WithName("critic"), graph.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	initial := graph.State{fieldDraft: draft}
	if err := graph.EncodeField(initial, fieldRubrics, rubrics); err != nil {
		return nil, err
	}
	return g.Invoke(ctx, initial, "critic/"+uuid.NewString())
}

const safetyPrompt = `You are the safety reviewer for CBT exercises. Evaluate the
draft against the safety rubric. Look for content that could harm a
vulnerable reader. Respond with JSON only:
{"approved": true|false, "items": [{"issue": "...", "severity":
"critical|major|minor", "location": "...", "recommendation": "..."}],
"summary": "..."}`

func (a *Agent) safetyNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var critique SafetyCritique
		err := a.evaluate(ctx, s, safetyPrompt, rubricOf(s, "safety"), &critique)
		if err != nil {
			// Safety fails closed: an unreviewed draft is an
			// unapproved draft.
			a.logger.Error("Safety evaluator failed, failing closed", map[string]interface{}{
				"error": err.Error(),
			})
			critique = SafetyCritique{
				Approved: false,
				Items: []CritiqueItem{{
					Issue:          "Safety review could not be completed",
					Severity:       SeverityCritical,
					Recommendation: "Re-run the review before releasing this draft",
				}},
				Summary: fmt.Sprintf("safety evaluator unavailable: %v", err),
			}
		}
		normalizeItems(critique.Items)
		return a.evaluatorResult("safety", fieldSafety, &critique, critique.Summary)
	}
}

const clinicalPrompt = `You are the clinical accuracy reviewer for CBT exercises.
Check the draft against the clinical rubric and flag claims without
evidential support. Respond with JSON only:
{"approved": true|false, "items": [{"issue": "...", "severity":
"critical|major|minor", "location": "...", "recommendation": "..."}],
"evidence_gaps": ["..."], "summary": "..."}`

func (a *Agent) clinicalNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var critique ClinicalAccuracyCritique
		err := a.evaluate(ctx, s, clinicalPrompt, rubricOf(s, "clinical_accuracy"), &critique)
		if err != nil {
			a.logger.Error("Clinical evaluator failed, failing closed", map[string]interface{}{
				"error": err.Error(),
			})
			critique = ClinicalAccuracyCritique{
				Approved: false,
				Items: []CritiqueItem{{
					Issue:          "Clinical accuracy review could not be completed",
					Severity:       SeverityMajor,
					Recommendation: "Re-run the review before releasing this draft",
				}},
				Summary: fmt.Sprintf("clinical evaluator unavailable: %v", err),
			}
		}
		normalizeItems(critique.Items)
		return a.evaluatorResult("clinical", fieldClinical, &critique, critique.Summary)
	}
}

const tonePrompt = `You are the tone and empathy reviewer for CBT exercises. Score
the draft's warmth and accessibility from 1 to 10 and approve unless
the tone would alienate a struggling reader. Respond with JSON only:
{"approved": true|false, "tone_score": 1-10, "items": [...], "summary": "..."}`

func (a *Agent) toneNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var critique ToneEmpathyCritique
		err := a.evaluate(ctx, s, tonePrompt, rubricOf(s, "usability"), &critique)
		if err != nil {
			// Tone fails open: style feedback alone never blocks a
			// draft the safety and clinical reviewers passed.
			a.logger.Warn("Tone evaluator failed, failing open", map[string]interface{}{
				"error": err.Error(),
			})
			critique = ToneEmpathyCritique{
				Approved:  true,
				ToneScore: 5,
				Summary:   fmt.Sprintf("tone evaluator unavailable: %v", err),
			}
		}
		if critique.ToneScore < 1 {
			critique.ToneScore = 1
		}
		if critique.ToneScore > 10 {
			critique.ToneScore = 10
		}
		normalizeItems(critique.Items)
		return a.evaluatorResult("tone", fieldTone, &critique, critique.Summary)
	}
}

func (a *Agent) evaluate(ctx context.Context, s graph.State, system, rubric string, out any) error {
	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:  a.cfg.ReasoningModel,
		System: system,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Rubric: %s\n\nDraft:\n%s", rubric, s.GetString(fieldDraft)),
		}},
	})
	if err != nil {
		return err
	}
	return llm.ParseJSON(resp.Content, out)
}

func (a *Agent) evaluatorResult(name, field string, critique any, summary string) (*graph.NodeResult, error) {
	update := graph.State{
		fieldScratchpad: fmt.Sprintf("\n### %s\n%s\n", name, summary),
		fieldMessages: []any{map[string]any{
			"role":    "assistant",
			"name":    name,
			"content": summary,
		}},
	}
	if err := graph.EncodeField(update, field, critique); err != nil {
		return nil, err
	}
	return graph.UpdateResult(update), nil
}

func (a *Agent) consolidateNode() graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
		var safety SafetyCritique
		var clinical ClinicalAccuracyCritique
		var tone ToneEmpathyCritique
		if err := graph.DecodeField(s, fieldSafety, &safety); err != nil {
			return nil, err
		}
		if err := graph.DecodeField(s, fieldClinical, &clinical); err != nil {
			return nil, err
		}
		if err := graph.DecodeField(s, fieldTone, &tone); err != nil {
			return nil, err
		}

		consolidated := ConsolidatedCritique{
			OverallApproved:  safety.Approved && clinical.Approved && tone.Approved,
			SafetyApproved:   safety.Approved,
			ClinicalApproved: clinical.Approved,
			ToneApproved:     tone.Approved,
			ToneScore:        tone.ToneScore,
			ActionItems:      orderActionItems(&safety, &clinical, &tone, a.cfg.ToneScoreThreshold),
		}
		consolidated.FinalSummary = a.summarize(ctx, &consolidated, &safety, &clinical, &tone)

		update := graph.State{}
		if err := graph.EncodeField(update, fieldConsolidated, &consolidated); err != nil {
			return nil, err
		}
		return graph.UpdateResult(update), nil
	}
}

const summaryPrompt = `Write a two or three sentence editorial summary of this
consolidated review for the revision author. Plain text only.`

// summarize asks the model for prose; the deterministic verdict stands
// regardless of what comes back.
func (a *Agent) summarize(ctx context.Context, c *ConsolidatedCritique, safety *SafetyCritique, clinical *ClinicalAccuracyCritique, tone *ToneEmpathyCritique) string {
	input := map[string]any{
		"overall_approved": c.OverallApproved,
		"safety":           safety.Summary,
		"clinical":         clinical.Summary,
		"tone":             tone.Summary,
		"action_items":     len(c.ActionItems),
	}
	data, _ := json.Marshal(input)

	resp, err := a.provider.Generate(ctx, &llm.Request{
		Model:    a.cfg.ReasoningModel,
		System:   summaryPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: string(data)}},
	})
	if err != nil || resp.Content == "" {
		if c.OverallApproved {
			return "All three reviewers approved the draft."
		}
		return fmt.Sprintf("The draft needs revision: %d action items across safety, clinical, and tone review.", len(c.ActionItems))
	}
	return resp.Content
}

// orderActionItems produces the revision worklist in fixed priority:
// critical safety, critical clinical, all majors, a tone item when the
// score is below threshold, then minors.
func orderActionItems(safety *SafetyCritique, clinical *ClinicalAccuracyCritique, tone *ToneEmpathyCritique, toneThreshold int) []CritiqueItem {
	var critical, major, minor []CritiqueItem

	bucket := func(items []CritiqueItem) {
		for _, item := range items {
			switch item.Severity {
			case SeverityCritical:
				critical = append(critical, item)
			case SeverityMajor:
				major = append(major, item)
			default:
				minor = append(minor, item)
			}
		}
	}
	// Bucketing order keeps safety criticals ahead of clinical ones.
	bucket(safety.Items)
	bucket(clinical.Items)

	out := append([]CritiqueItem{}, critical...)
	out = append(out, major...)

	if tone.ToneScore > 0 && tone.ToneScore < toneThreshold {
		out = append(out, CritiqueItem{
			Issue:          fmt.Sprintf("Tone score %d is below the acceptable threshold of %d", tone.ToneScore, toneThreshold),
			Severity:       SeverityMajor,
			Recommendation: "Warm up the language and address the tone reviewer's notes",
		})
	}
	bucketTone := func() {
		for _, item := range tone.Items {
			if item.Severity == SeverityMinor {
				minor = append(minor, item)
			} else {
				out = append(out, item)
			}
		}
	}
	bucketTone()

	return append(out, minor...)
}

func normalizeItems(items []CritiqueItem) {
	for i := range items {
		items[i].Severity = normalizeSeverity(items[i].Severity)
	}
}

func rubricOf(s graph.State, key string) string {
	var rubrics map[string]string
	if err := graph.DecodeField(s, fieldRubrics, &rubrics); err != nil {
		return ""
	}
	return rubrics[key]
}

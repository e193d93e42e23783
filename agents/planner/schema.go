package planner

import (
	"fmt"
	"strings"
)

// EvidenceAnchor cites one clinical source the plan rests on.
type EvidenceAnchor struct {
	Source string `json:"source"`
	Note   string `json:"note"`
}

// DraftingSpec instructs the draftsman.
type DraftingSpec struct {
	TaskConstraints []string `json:"task_constraints"`
	StyleRules      []string `json:"style_rules"`
}

// SafetyEnvelope bounds what the exercise may contain.
type SafetyEnvelope struct {
	ForbiddenContent  []string `json:"forbidden_content"`
	SpecialConditions []string `json:"special_conditions"`
}

// CriticRubrics parameterizes the three critics for this exercise.
type CriticRubrics struct {
	Safety           string `json:"safety"`
	ClinicalAccuracy string `json:"clinical_accuracy"`
	Usability        string `json:"usability"`
}

// PlanDocument is the planner's contract with every downstream stage.
type PlanDocument struct {
	ExerciseType    string           `json:"exercise_type"`
	DraftingSpec    DraftingSpec     `json:"drafting_spec"`
	SafetyEnvelope  SafetyEnvelope   `json:"safety_envelope"`
	CriticRubrics   CriticRubrics    `json:"critic_rubrics"`
	EvidenceAnchors []EvidenceAnchor `json:"evidence_anchors"`
	UserPreview     string           `json:"user_preview"`
}

// Validate rejects structurally unusable plans. Only the anchor floor
// is enforced; the two-to-three guidance lives in the drafting prompt,
// and revision may grow the list past it.
func (p *PlanDocument) Validate() error {
	if strings.TrimSpace(p.ExerciseType) == "" {
		return fmt.Errorf("plan missing exercise_type")
	}
	if strings.TrimSpace(p.UserPreview) == "" {
		return fmt.Errorf("plan missing user_preview")
	}
	if len(p.EvidenceAnchors) < 2 {
		return fmt.Errorf("plan needs at least 2 evidence anchors, got %d", len(p.EvidenceAnchors))
	}
	for i, a := range p.EvidenceAnchors {
		if strings.TrimSpace(a.Source) == "" {
			return fmt.Errorf("evidence anchor %d missing source", i)
		}
	}
	return nil
}

// MergeRevision enforces additive-by-default revision semantics: every
// list item present in prev survives into next unless the feedback
// explicitly asks for its removal. Order of surviving items follows
// prev, with genuinely new items appended after.
func MergeRevision(prev, next *PlanDocument, feedback string) *PlanDocument {
	merged := *next
	lowered := strings.ToLower(feedback)

	merged.DraftingSpec.TaskConstraints = mergeStringList(
		prev.DraftingSpec.TaskConstraints, next.DraftingSpec.TaskConstraints, lowered)
	merged.DraftingSpec.StyleRules = mergeStringList(
		prev.DraftingSpec.StyleRules, next.DraftingSpec.StyleRules, lowered)
	merged.SafetyEnvelope.ForbiddenContent = mergeStringList(
		prev.SafetyEnvelope.ForbiddenContent, next.SafetyEnvelope.ForbiddenContent, lowered)
	merged.SafetyEnvelope.SpecialConditions = mergeStringList(
		prev.SafetyEnvelope.SpecialConditions, next.SafetyEnvelope.SpecialConditions, lowered)
	merged.EvidenceAnchors = mergeAnchors(
		prev.EvidenceAnchors, next.EvidenceAnchors, lowered)

	return &merged
}

func mergeStringList(prev, next []string, loweredFeedback string) []string {
	out := make([]string, 0, len(prev)+len(next))
	seen := make(map[string]bool)
	for _, item := range prev {
		if removalRequested(item, loweredFeedback) {
			continue
		}
		out = append(out, item)
		seen[strings.ToLower(item)] = true
	}
	for _, item := range next {
		if seen[strings.ToLower(item)] {
			continue
		}
		out = append(out, item)
		seen[strings.ToLower(item)] = true
	}
	return out
}

func mergeAnchors(prev, next []EvidenceAnchor, loweredFeedback string) []EvidenceAnchor {
	key := func(a EvidenceAnchor) string {
		return strings.ToLower(a.Source) + "\x00" + strings.ToLower(a.Note)
	}
	out := make([]EvidenceAnchor, 0, len(prev)+len(next))
	seen := make(map[string]bool)
	for _, a := range prev {
		if removalRequested(a.Source, loweredFeedback) {
			continue
		}
		out = append(out, a)
		seen[key(a)] = true
	}
	for _, a := range next {
		if seen[key(a)] {
			continue
		}
		out = append(out, a)
		seen[key(a)] = true
	}
	return out
}

// removalRequested is deliberately narrow: the feedback must both name
// the item and use removal language before a prior item is dropped.
func removalRequested(item, loweredFeedback string) bool {
	li := strings.ToLower(strings.TrimSpace(item))
	if li == "" || !strings.Contains(loweredFeedback, li) {
		return false
	}
	for _, verb := range []string{"remove", "drop", "delete", "without", "no longer"} {
		if strings.Contains(loweredFeedback, verb) {
			return true
		}
	}
	return false
}

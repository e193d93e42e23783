package critic

import (
	"fmt"
	"strings"
)

// Severity levels for critique items.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// CritiqueItem is one concrete issue found in a draft.
type CritiqueItem struct {
	Issue          string `json:"issue"`
	Severity       string `json:"severity"`
	Location       string `json:"location"`
	Recommendation string `json:"recommendation"`
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityMajor:
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

// SafetyCritique is the safety evaluator's verdict.
type SafetyCritique struct {
	Approved bool           `json:"approved"`
	Items    []CritiqueItem `json:"items"`
	Summary  string         `json:"summary"`
}

// ClinicalAccuracyCritique is the clinical evaluator's verdict.
type ClinicalAccuracyCritique struct {
	Approved     bool           `json:"approved"`
	Items        []CritiqueItem `json:"items"`
	EvidenceGaps []string       `json:"evidence_gaps"`
	Summary      string         `json:"summary"`
}

// ToneEmpathyCritique is the tone evaluator's verdict. ToneScore runs
// 1 to 10.
type ToneEmpathyCritique struct {
	Approved  bool           `json:"approved"`
	ToneScore int            `json:"tone_score"`
	Items     []CritiqueItem `json:"items"`
	Summary   string         `json:"summary"`
}

// ConsolidatedCritique is the merged verdict the reflection loop acts
// on. OverallApproved is always the conjunction of the three
// evaluator approvals; no model output can override it.
type ConsolidatedCritique struct {
	OverallApproved  bool           `json:"overall_approved"`
	SafetyApproved   bool           `json:"safety_approved"`
	ClinicalApproved bool           `json:"clinical_approved"`
	ToneApproved     bool           `json:"tone_approved"`
	ToneScore        int            `json:"tone_score"`
	ActionItems      []CritiqueItem `json:"action_items"`
	FinalSummary     string         `json:"final_summary"`
}

// ToMarkdown renders the consolidated critique as the review document
// shown to observers.
func (c *ConsolidatedCritique) ToMarkdown(iteration int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Critique, iteration %d\n\n", iteration)
	fmt.Fprintf(&sb, "Overall: %s\n\n", verdict(c.OverallApproved))
	fmt.Fprintf(&sb, "- Safety: %s\n", verdict(c.SafetyApproved))
	fmt.Fprintf(&sb, "- Clinical accuracy: %s\n", verdict(c.ClinicalApproved))
	fmt.Fprintf(&sb, "- Tone and empathy: %s (score %d/10)\n", verdict(c.ToneApproved), c.ToneScore)

	if len(c.ActionItems) > 0 {
		sb.WriteString("\n## Action items\n\n")
		for i, item := range c.ActionItems {
			fmt.Fprintf(&sb, "%d. [%s] %s", i+1, item.Severity, item.Issue)
			if item.Location != "" {
				fmt.Fprintf(&sb, " (at: %s)", item.Location)
			}
			if item.Recommendation != "" {
				fmt.Fprintf(&sb, "\n   Recommendation: %s", item.Recommendation)
			}
			sb.WriteString("\n")
		}
	}
	if c.FinalSummary != "" {
		fmt.Fprintf(&sb, "\n## Summary\n\n%s\n", c.FinalSummary)
	}
	return sb.String()
}

func verdict(approved bool) string {
	if approved {
		return "approved"
	}
	return "needs revision"
}

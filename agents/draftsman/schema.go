package draftsman

import (
	"fmt"
	"strings"
)

// ProtocolContract is the drafting-facing reshaping of the approved
// plan: everything the section writers must honor, nothing else.
type ProtocolContract struct {
	ExerciseType      string   `json:"exercise_type"`
	ClinicalRubric    string   `json:"clinical_rubric"`
	TaskConstraints   []string `json:"task_constraints"`
	StyleRules        []string `json:"style_rules"`
	ForbiddenContent  []string `json:"forbidden_content"`
	SpecialConditions []string `json:"special_conditions"`
}

// TargetMechanism names one psychological mechanism the exercise works
// through and how the user engages it.
type TargetMechanism struct {
	Name             string `json:"name"`
	Rationale        string `json:"rationale"`
	EngagementMethod string `json:"engagement_method"`
}

// MechanismMap collects the exercise's target mechanisms.
type MechanismMap struct {
	TargetMechanisms []TargetMechanism `json:"target_mechanisms"`
}

func (m *MechanismMap) Validate() error {
	if len(m.TargetMechanisms) == 0 {
		return fmt.Errorf("mechanism map has no target mechanisms")
	}
	for i, t := range m.TargetMechanisms {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("target mechanism %d missing name", i)
		}
	}
	return nil
}

// SectionConstraints bounds one section's prose.
type SectionConstraints struct {
	MaxWords    int      `json:"max_words,omitempty"`
	MustInclude []string `json:"must_include,omitempty"`
	Tone        string   `json:"tone,omitempty"`
}

// SectionSpec describes one section of the skeleton.
type SectionSpec struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Purpose     string             `json:"purpose"`
	Constraints SectionConstraints `json:"constraints"`
}

// ExerciseSkeleton is the frozen structure the section loop fills in.
// Once produced it never changes; assembly is pure concatenation in
// skeleton order.
type ExerciseSkeleton struct {
	Title    string        `json:"title"`
	Sections []SectionSpec `json:"sections"`
}

func (s *ExerciseSkeleton) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("skeleton missing title")
	}
	if len(s.Sections) == 0 {
		return fmt.Errorf("skeleton has no sections")
	}
	seen := make(map[string]bool)
	for i, sec := range s.Sections {
		if strings.TrimSpace(sec.ID) == "" {
			return fmt.Errorf("section %d missing id", i)
		}
		if seen[sec.ID] {
			return fmt.Errorf("duplicate section id %q", sec.ID)
		}
		seen[sec.ID] = true
	}
	return nil
}

// SectionDraft is one completed section.
type SectionDraft struct {
	SectionID string `json:"section_id"`
	Content   string `json:"content"`
}

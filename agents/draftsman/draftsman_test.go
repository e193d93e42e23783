package draftsman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/agents/planner"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

func draftingProvider(failSectionID string) *llm.Mock {
	return &llm.Mock{RespondFunc: func(req *llm.Request) (*llm.Response, error) {
		sys := req.System
		user := ""
		if len(req.Messages) > 0 {
			user = req.Messages[0].Content
		}
		switch {
		case strings.Contains(sys, "target psychological mechanisms"):
			return jsonResponse(MechanismMap{TargetMechanisms: []TargetMechanism{
				{Name: "cognitive restructuring", Rationale: "core mechanism", EngagementMethod: "guided questioning"},
			}})
		case strings.Contains(sys, "Design the structure"):
			return jsonResponse(ExerciseSkeleton{
				Title: "Thought Record",
				Sections: []SectionSpec{
					{ID: "intro", Name: "Introduction", Purpose: "orient"},
					{ID: "grounding", Name: "Grounding", Purpose: "settle"},
					{ID: "practice", Name: "Practice", Purpose: "work"},
				},
			})
		case strings.Contains(sys, "Write one section"):
			if failSectionID != "" && strings.Contains(user, fmt.Sprintf("%q", failSectionID)) {
				return nil, errors.New("section provider unavailable")
			}
			for _, id := range []string{"intro", "grounding", "practice"} {
				if strings.Contains(user, fmt.Sprintf("%q", id)) {
					return &llm.Response{Content: "Prose for " + id + "."}, nil
				}
			}
			return nil, fmt.Errorf("unknown section request: %.80s", user)
		}
		return nil, fmt.Errorf("unexpected system prompt: %.60s", sys)
	}}
}

func jsonResponse(v any) (*llm.Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: string(data)}, nil
}

func planState(t *testing.T) graph.State {
	t.Helper()
	s := graph.State{}
	require.NoError(t, graph.EncodeField(s, agents.KeyPlan, &planner.PlanDocument{
		ExerciseType: "thought_record",
		DraftingSpec: planner.DraftingSpec{
			TaskConstraints: []string{"keep under 600 words"},
			StyleRules:      []string{"warm tone"},
		},
		SafetyEnvelope: planner.SafetyEnvelope{
			ForbiddenContent: []string{"self-harm instructions"},
		},
		CriticRubrics: planner.CriticRubrics{
			Safety:           "no triggering content",
			ClinicalAccuracy: "consistent with CBT literature",
			Usability:        "plain language",
		},
		EvidenceAnchors: []planner.EvidenceAnchor{
			{Source: "Beck 1979", Note: "cognitive restructuring"},
			{Source: "Clark 1986", Note: "panic model"},
		},
		UserPreview: "A short thought record exercise.",
	}))
	return s
}

func TestInvokeAssemblesSectionsInSkeletonOrder(t *testing.T) {
	agent := New(draftingProvider(""), nil, nil, nil)

	res, err := agent.Invoke(context.Background(), planState(t))
	require.NoError(t, err)

	draft, _ := res.Update[agents.KeyDraft].(string)
	assert.True(t, strings.HasPrefix(draft, "# Thought Record\n"))
	for _, want := range []string{"## Introduction", "Prose for intro.", "## Grounding", "## Practice", "Prose for practice."} {
		assert.Contains(t, draft, want)
	}

	intro := strings.Index(draft, "## Introduction")
	grounding := strings.Index(draft, "## Grounding")
	practice := strings.Index(draft, "## Practice")
	assert.Less(t, intro, grounding)
	assert.Less(t, grounding, practice)

	assert.Equal(t, draft, res.Update.GetString(agents.KeyCurrentDraft))
	assert.Equal(t, 1, res.Update.GetInt(agents.KeyReflectionIteration))
	assert.Equal(t, core.DefaultConfig().MaxReflectionIterations, res.Update.GetInt(agents.KeyMaxIterations))

	var versions []agents.DraftVersion
	require.NoError(t, graph.DecodeField(res.Update, agents.KeyDraftVersions, &versions))
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, agents.DraftStatusInitial, versions[0].Status)
	assert.Equal(t, draft, versions[0].Content)
}

func TestFailedSectionGetsPlaceholder(t *testing.T) {
	agent := New(draftingProvider("grounding"), nil, nil, nil)

	res, err := agent.Invoke(context.Background(), planState(t))
	require.NoError(t, err)

	draft, _ := res.Update[agents.KeyDraft].(string)
	assert.Contains(t, draft, `[Section "Grounding" could not be drafted`)
	assert.Contains(t, draft, "Prose for intro.")
	assert.Contains(t, draft, "Prose for practice.")
}

func TestInvokeWithoutPlanFails(t *testing.T) {
	agent := New(draftingProvider(""), nil, nil, nil)

	_, err := agent.Invoke(context.Background(), graph.State{})
	assert.Error(t, err)
}

func TestContractFromPlanIsDeterministic(t *testing.T) {
	plan := &planner.PlanDocument{
		ExerciseType: "thought_record",
		DraftingSpec: planner.DraftingSpec{
			TaskConstraints: []string{"short"},
			StyleRules:      []string{"warm"},
		},
		SafetyEnvelope: planner.SafetyEnvelope{
			ForbiddenContent:  []string{"x"},
			SpecialConditions: []string{"y"},
		},
		CriticRubrics: planner.CriticRubrics{ClinicalAccuracy: "rubric"},
	}

	contract := contractFromPlan(plan)
	assert.Equal(t, "thought_record", contract.ExerciseType)
	assert.Equal(t, "rubric", contract.ClinicalRubric)
	assert.Equal(t, []string{"short"}, contract.TaskConstraints)
	assert.Equal(t, []string{"x"}, contract.ForbiddenContent)
	assert.Equal(t, []string{"y"}, contract.SpecialConditions)
}

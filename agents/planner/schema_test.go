package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePlan() *PlanDocument {
	return &PlanDocument{
		ExerciseType: "thought_record",
		DraftingSpec: DraftingSpec{
			TaskConstraints: []string{"keep under 600 words", "use second person"},
			StyleRules:      []string{"warm tone"},
		},
		SafetyEnvelope: SafetyEnvelope{
			ForbiddenContent:  []string{"self-harm instructions", "medication advice"},
			SpecialConditions: []string{"user reports panic attacks"},
		},
		CriticRubrics: CriticRubrics{
			Safety:           "no triggering content",
			ClinicalAccuracy: "consistent with CBT literature",
			Usability:        "readable at 8th grade level",
		},
		EvidenceAnchors: []EvidenceAnchor{
			{Source: "Beck 1979", Note: "cognitive restructuring"},
			{Source: "Clark 1986", Note: "panic model"},
		},
		UserPreview: "A short thought record exercise.",
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		require.NoError(t, basePlan().Validate())
	})

	t.Run("missing exercise type", func(t *testing.T) {
		p := basePlan()
		p.ExerciseType = " "
		assert.Error(t, p.Validate())
	})

	t.Run("too few anchors", func(t *testing.T) {
		p := basePlan()
		p.EvidenceAnchors = p.EvidenceAnchors[:1]
		assert.Error(t, p.Validate())
	})

	t.Run("extra anchors tolerated", func(t *testing.T) {
		p := basePlan()
		for i := 0; i < 3; i++ {
			p.EvidenceAnchors = append(p.EvidenceAnchors, EvidenceAnchor{Source: fmt.Sprintf("S%d", i), Note: "n"})
		}
		require.NoError(t, p.Validate())
		assert.Len(t, p.EvidenceAnchors, 5)
	})

	t.Run("anchor without source", func(t *testing.T) {
		p := basePlan()
		p.EvidenceAnchors[0].Source = ""
		assert.Error(t, p.Validate())
	})
}

func TestMergeRevisionPreservesPriorItems(t *testing.T) {
	prev := basePlan()
	// The model "forgot" a forbidden item and an anchor while adding
	// new material.
	next := basePlan()
	next.SafetyEnvelope.ForbiddenContent = []string{"medication advice", "crisis roleplay"}
	next.EvidenceAnchors = []EvidenceAnchor{
		{Source: "Clark 1986", Note: "panic model"},
	}

	merged := MergeRevision(prev, next, "please also forbid crisis roleplay")

	// N prior items survive, the instructed addition lands, order is
	// prior-first.
	assert.Equal(t,
		[]string{"self-harm instructions", "medication advice", "crisis roleplay"},
		merged.SafetyEnvelope.ForbiddenContent)

	require.Len(t, merged.EvidenceAnchors, 2)
	assert.Equal(t, "Beck 1979", merged.EvidenceAnchors[0].Source)
	assert.Equal(t, "Clark 1986", merged.EvidenceAnchors[1].Source)
}

func TestMergeRevisionHonorsExplicitRemoval(t *testing.T) {
	prev := basePlan()
	next := basePlan()
	next.DraftingSpec.StyleRules = []string{"clinical tone"}

	merged := MergeRevision(prev, next, "remove the warm tone rule, use clinical tone")

	assert.Equal(t, []string{"clinical tone"}, merged.DraftingSpec.StyleRules)
}

func TestMergeRevisionIgnoresMentionWithoutRemovalLanguage(t *testing.T) {
	prev := basePlan()
	next := basePlan()
	next.DraftingSpec.StyleRules = []string{"even warmer"}

	// Feedback mentions the item but asks for no removal.
	merged := MergeRevision(prev, next, "I like the warm tone, make it even warmer")

	assert.Contains(t, merged.DraftingSpec.StyleRules, "warm tone")
	assert.Contains(t, merged.DraftingSpec.StyleRules, "even warmer")
}

func TestMergeRevisionDeduplicates(t *testing.T) {
	prev := basePlan()
	next := basePlan()

	merged := MergeRevision(prev, next, "looks fine, minor polish")

	assert.Equal(t, prev.SafetyEnvelope.ForbiddenContent, merged.SafetyEnvelope.ForbiddenContent)
	assert.Len(t, merged.EvidenceAnchors, 2)
}

func TestMergeRevisionAddsRequestedAnchor(t *testing.T) {
	prev := basePlan()
	prev.EvidenceAnchors = append(prev.EvidenceAnchors,
		EvidenceAnchor{Source: "Hofmann 2012", Note: "meta-analysis"})

	next := basePlan()
	next.EvidenceAnchors = append(prev.EvidenceAnchors,
		EvidenceAnchor{Source: "Barlow 2002", Note: "unified protocol"})

	merged := MergeRevision(prev, next, "add an anchor for Barlow 2002 with a note on the unified protocol")

	// Three prior anchors plus the instructed addition: exactly four,
	// prior-first, the new anchor's note intact.
	require.Len(t, merged.EvidenceAnchors, 4)
	assert.Equal(t, "Beck 1979", merged.EvidenceAnchors[0].Source)
	assert.Equal(t, "Clark 1986", merged.EvidenceAnchors[1].Source)
	assert.Equal(t, "Hofmann 2012", merged.EvidenceAnchors[2].Source)
	assert.Equal(t, "Barlow 2002", merged.EvidenceAnchors[3].Source)
	assert.Equal(t, "unified protocol", merged.EvidenceAnchors[3].Note)
}

// Package agents holds the state vocabulary and shared value types the
// stage agents exchange through workflow state. Each agent package
// parses its inputs into typed structs at the boundary and writes
// JSON-shaped values back.
package agents

import "time"

// Workflow state field names. The merge policy for each is declared in
// the workflow package's state schema.
const (
	KeyQuery    = "query"
	KeyRoute    = "route"
	KeyMessages = "messages"

	KeyPlan              = "plan"
	KeyPlanRevisionCount = "plan_revision_count"

	KeyHITLDecision = "hitl_decision"
	KeyHITLFeedback = "hitl_feedback"
	KeyHITLPending  = "hitl_pending"

	KeyDraft               = "draft"
	KeyCurrentDraft        = "current_draft"
	KeyProtocolContract    = "protocol_contract"
	KeyDraftVersions       = "draft_versions"
	KeyReflectionIteration = "reflection_iteration"
	KeyMaxIterations       = "max_iterations"

	KeySafetyCritique       = "safety_critique"
	KeyClinicalCritique     = "clinical_critique"
	KeyToneCritique         = "tone_critique"
	KeyConsolidatedCritique = "consolidated_critique"

	KeyInternalMessages   = "internal_messages"
	KeyInternalScratchpad = "internal_scratchpad"

	KeyFinalPresentation = "final_presentation"
)

// Route labels produced by the router.
const (
	RouteConversation = "conversation"
	RoutePlanner      = "planner"
	RouteDraftsman    = "draftsman"
)

// HITL decisions accepted when resuming a plan approval.
const (
	DecisionApproved = "approved"
	DecisionRevised  = "revised"
	DecisionRejected = "rejected"
)

// Agent names used in events and history entries.
const (
	NameRouter      = "router"
	NamePlanner     = "planner"
	NameDraftsman   = "draftsman"
	NameCritic      = "critic"
	NameReviser     = "reviser"
	NameSynthesizer = "synthesizer"
)

// DraftVersion is one entry of the draft_versions history.
type DraftVersion struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Iteration int       `json:"iteration"`
	Changes   string    `json:"changes,omitempty"`
}

// Draft version statuses.
const (
	DraftStatusInitial = "initial"
	DraftStatusRevised = "revised"
	DraftStatusFinal   = "final"
)

// Package events defines the workflow event vocabulary and the emitter
// used to surface agent progress to consumers. Emitters are explicit
// constructor dependencies of every agent; nothing reaches for a global.
package events

import "time"

// Type identifies the kind of workflow event.
type Type string

const (
	TypeThought             Type = "thought"
	TypeThoughtChunk        Type = "thought_chunk"
	TypeMessage             Type = "message"
	TypeMessageChunk        Type = "message_chunk"
	TypeMessageEnd          Type = "message_end"
	TypeToolCall            Type = "tool_call"
	TypeToolResult          Type = "tool_result"
	TypeArtifact            Type = "artifact"
	TypeStatus              Type = "status"
	TypeAgentStart          Type = "agent_start"
	TypeAgentMemory         Type = "agent_memory"
	TypeCritiqueDocument    Type = "critique_document"
	TypeDraftUpdated        Type = "draft_updated"
	TypeReflectionStatus    Type = "reflection_status"
	TypePlanPendingApproval Type = "plan_pending_approval"

	// TypeDone marks the end of a run's event stream.
	TypeDone Type = "__DONE__"
)

// Event is a single item on a run's event stream.
type Event struct {
	Type         Type           `json:"type"`
	Agent        string         `json:"agent,omitempty"`
	Content      string         `json:"content,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	ToolOutput   string         `json:"tool_output,omitempty"`
	ArtifactType string         `json:"artifact_type,omitempty"`
	ArtifactName string         `json:"artifact_name,omitempty"`
	Iteration    int            `json:"iteration,omitempty"`
	Version      int            `json:"version,omitempty"`
	Scratchpad   string         `json:"scratchpad,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Transient reports whether the event carries ephemeral UI signal that
// must never be persisted to the history store.
func (e Event) Transient() bool {
	switch e.Type {
	case TypeThoughtChunk, TypeMessageChunk, TypeMessageEnd,
		TypeStatus, TypeReflectionStatus, TypeToolCall, TypeAgentMemory:
		return true
	}
	return false
}

// Emitter is the write side of a run's event stream.
// Implementations must tolerate Emit after Close without blocking
// or panicking.
type Emitter interface {
	Emit(ev Event)
	Done()
	Close()
}

// NoopEmitter discards every event. Useful for unobserved runs and tests.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
func (NoopEmitter) Done()      {}
func (NoopEmitter) Close()     {}

// Convenience constructors mirroring the event vocabulary.

func Thought(agent, content string) Event {
	return Event{Type: TypeThought, Agent: agent, Content: content, Timestamp: time.Now().UTC()}
}

func ThoughtChunk(agent, content string) Event {
	return Event{Type: TypeThoughtChunk, Agent: agent, Content: content, Timestamp: time.Now().UTC()}
}

func Message(agent, content string) Event {
	return Event{Type: TypeMessage, Agent: agent, Content: content, Timestamp: time.Now().UTC()}
}

func MessageChunk(agent, content string) Event {
	return Event{Type: TypeMessageChunk, Agent: agent, Content: content, Timestamp: time.Now().UTC()}
}

func MessageEnd(agent string) Event {
	return Event{Type: TypeMessageEnd, Agent: agent, Timestamp: time.Now().UTC()}
}

func ToolCall(agent, tool string, args map[string]any) Event {
	return Event{Type: TypeToolCall, Agent: agent, ToolName: tool, ToolArgs: args, Timestamp: time.Now().UTC()}
}

func ToolResult(agent, tool, output string) Event {
	return Event{Type: TypeToolResult, Agent: agent, ToolName: tool, ToolOutput: output, Timestamp: time.Now().UTC()}
}

func Artifact(agent, artifactType, name, content string, version int) Event {
	return Event{
		Type: TypeArtifact, Agent: agent, ArtifactType: artifactType,
		ArtifactName: name, Content: content, Version: version,
		Timestamp: time.Now().UTC(),
	}
}

func Status(agent, content string) Event {
	return Event{Type: TypeStatus, Agent: agent, Content: content, Timestamp: time.Now().UTC()}
}

func AgentStart(agent string) Event {
	return Event{Type: TypeAgentStart, Agent: agent, Timestamp: time.Now().UTC()}
}

func AgentMemory(agent, scratchpad string) Event {
	return Event{Type: TypeAgentMemory, Agent: agent, Scratchpad: scratchpad, Timestamp: time.Now().UTC()}
}

func CritiqueDocument(agent, markdown string, iteration int) Event {
	return Event{Type: TypeCritiqueDocument, Agent: agent, Content: markdown, Iteration: iteration, Timestamp: time.Now().UTC()}
}

func DraftUpdated(agent, content string, version, iteration int) Event {
	return Event{Type: TypeDraftUpdated, Agent: agent, Content: content, Version: version, Iteration: iteration, Timestamp: time.Now().UTC()}
}

func ReflectionStatus(agent, content string, iteration int) Event {
	return Event{Type: TypeReflectionStatus, Agent: agent, Content: content, Iteration: iteration, Timestamp: time.Now().UTC()}
}

func PlanPendingApproval(agent, preview string, payload map[string]any) Event {
	return Event{Type: TypePlanPendingApproval, Agent: agent, Content: preview, Payload: payload, Timestamp: time.Now().UTC()}
}

func DoneEvent() Event {
	return Event{Type: TypeDone, Timestamp: time.Now().UTC()}
}

// Package llm defines the model provider abstraction used by every agent.
// Concrete API bindings live outside this module; agents depend only on
// the Provider interface and are tested against the Mock.
package llm

import (
	"context"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of provider conversation input.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ToolSpec describes a tool the model may request.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Request is a single provider call.
type Request struct {
	Model       string     `json:"model,omitempty"`
	System      string     `json:"system,omitempty"`
	Messages    []Message  `json:"messages"`
	Tools       []ToolSpec `json:"tools,omitempty"`
	Temperature float32    `json:"temperature,omitempty"`
}

// Response is the completed output of a provider call. A streamed call
// accumulated by the caller must produce a Response identical in shape
// to what Generate returns for the same request.
type Response struct {
	Content   string     `json:"content"`
	Thinking  string     `json:"thinking,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Chunk is one increment of a streamed response. Err terminates the
// stream when set.
type Chunk struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCall
	Err       error
}

// Provider is the opaque model client boundary.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// ProviderError wraps provider failures with call context.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Accumulate drains a chunk stream into a single Response.
// The callback, when non-nil, observes each chunk as it arrives.
func Accumulate(ctx context.Context, ch <-chan Chunk, observe func(Chunk)) (*Response, error) {
	resp := &Response{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return resp, nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			if observe != nil {
				observe(chunk)
			}
			resp.Content += chunk.Text
			resp.Thinking += chunk.Thinking
			resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		}
	}
}

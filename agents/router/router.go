// Package router classifies the user's request into a conversational
// reply, a full planning run, or a direct drafting run. Classification
// is best effort: any failure falls open to the planner, the safest
// complete path.
package router

import (
	"context"
	"strings"

	"github.com/naveenvasou/cerina-v0/agents"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/llm"
)

// Agent routes incoming queries.
type Agent struct {
	provider llm.Provider
	emitter  events.Emitter
	logger   core.Logger
}

// New creates a router Agent.
func New(provider llm.Provider, emitter events.Emitter, logger core.Logger) *Agent {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Agent{provider: provider, emitter: emitter, logger: logger}
}

type classification struct {
	Route string `json:"route"`
}

const classifyPrompt = `You are the intake router for a CBT exercise studio.
Classify the user's request into exactly one route:
- "conversation": a question or chat that needs a direct reply, no exercise.
- "planner": a request for a new therapeutic exercise that needs planning.
- "draftsman": a request to draft from an already agreed plan.
Respond with JSON only: {"route": "<conversation|planner|draftsman>"}`

// Classify decides the route for the thread's query.
func (a *Agent) Classify(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	a.emitter.Emit(events.AgentStart(agents.NameRouter))

	query := s.GetString(agents.KeyQuery)
	route := agents.RoutePlanner

	resp, err := a.provider.Generate(ctx, &llm.Request{
		System:   classifyPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: query}},
	})
	if err != nil {
		a.logger.Warn("Router classification failed, falling open to planner", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		var c classification
		if perr := llm.ParseJSON(resp.Content, &c); perr != nil {
			a.logger.Warn("Router output unparseable, falling open to planner", map[string]interface{}{
				"error": perr.Error(),
			})
		} else if valid(c.Route) {
			route = c.Route
		}
	}

	a.logger.Info("Query routed", map[string]interface{}{
		"route": route,
	})
	return graph.UpdateResult(graph.State{
		agents.KeyRoute: route,
	}), nil
}

func valid(route string) bool {
	switch route {
	case agents.RouteConversation, agents.RoutePlanner, agents.RouteDraftsman:
		return true
	}
	return false
}

const respondPrompt = `You are a warm, knowledgeable CBT assistant.
Answer the user's question directly and briefly. Do not produce an
exercise; this turn is conversation only.`

// Respond handles the conversational route with a single streamed reply.
func (a *Agent) Respond(ctx context.Context, s graph.State) (*graph.NodeResult, error) {
	query := s.GetString(agents.KeyQuery)

	stream, err := a.provider.Stream(ctx, &llm.Request{
		System:   respondPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: query}},
	})

	var content string
	if err == nil {
		resp, aerr := llm.Accumulate(ctx, stream, func(chunk llm.Chunk) {
			if chunk.Text != "" {
				a.emitter.Emit(events.MessageChunk(agents.NameRouter, chunk.Text))
			}
		})
		if aerr == nil {
			content = resp.Content
		} else {
			err = aerr
		}
	}
	if err != nil {
		a.logger.Warn("Conversational reply failed", map[string]interface{}{
			"error": err.Error(),
		})
		content = "I ran into a problem answering that. Could you try rephrasing, or ask me to create an exercise instead?"
	}
	content = strings.TrimSpace(content)

	a.emitter.Emit(events.MessageEnd(agents.NameRouter))
	a.emitter.Emit(events.Message(agents.NameRouter, content))

	return graph.UpdateResult(graph.State{
		agents.KeyMessages: []any{map[string]any{
			"role":    "assistant",
			"content": content,
		}},
	}), nil
}

// Package tools defines the external collaborators the planner may call
// while reasoning: clinical guideline search and safety protocol checks.
// Tool failures degrade to conservative inline text, never abort a run.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/naveenvasou/cerina-v0/core"
)

// Search retrieves clinical guideline excerpts relevant to a query.
type Search interface {
	Search(ctx context.Context, query string) (string, error)
}

// SafetyVerdict is the structured result of a safety protocol check.
type SafetyVerdict struct {
	IsSafe                bool     `json:"is_safe"`
	RiskFlags             []string `json:"risk_flags"`
	RequiredModifications []string `json:"required_modifications"`
	Reasoning             string   `json:"reasoning"`
}

// SafetyChecker evaluates a plan overview against known risk factors.
type SafetyChecker interface {
	Check(ctx context.Context, planOverview string, riskFactors []string) (*SafetyVerdict, error)
}

// Handler executes one named tool call.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Registry maps tool names to handlers. An unknown tool or a failed
// handler yields fallback text inline rather than an error, so the
// reasoning loop always receives an observation.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   core.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds or replaces a named handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Call invokes a named tool. The returned string is always usable as an
// observation: unknown tools and handler errors produce fallback text.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) string {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Unknown tool requested", map[string]interface{}{
			"tool": name,
		})
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %v.", name, r.Names())
	}

	out, err := h(ctx, args)
	if err != nil {
		r.logger.Warn("Tool call failed, using conservative fallback", map[string]interface{}{
			"tool":  name,
			"error": err.Error(),
		})
		return fmt.Sprintf("Tool %q unavailable (%v). Proceed conservatively and flag for manual review.", name, err)
	}
	return out
}

// RegisterSearch wires a Search implementation under the standard name.
func (r *Registry) RegisterSearch(s Search) {
	r.Register("search_clinical_guidelines", func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("%w: search requires a query", core.ErrInvalidConfiguration)
		}
		return s.Search(ctx, query)
	})
}

// RegisterSafetyChecker wires a SafetyChecker under the standard name.
// A checker failure yields a not-safe verdict so drafting stays guarded.
func (r *Registry) RegisterSafetyChecker(c SafetyChecker) {
	r.Register("check_safety_protocol", func(ctx context.Context, args map[string]any) (string, error) {
		overview, _ := args["plan_overview"].(string)
		var risks []string
		if raw, ok := args["risk_factors"].([]any); ok {
			for _, item := range raw {
				if s, ok := item.(string); ok {
					risks = append(risks, s)
				}
			}
		}

		verdict, err := c.Check(ctx, overview, risks)
		if err != nil {
			verdict = &SafetyVerdict{
				IsSafe:                false,
				RiskFlags:             []string{"checker_unavailable"},
				RequiredModifications: []string{"manual safety review required"},
				Reasoning:             fmt.Sprintf("safety checker failed: %v", err),
			}
		}
		data, merr := json.Marshal(verdict)
		if merr != nil {
			return "", merr
		}
		return string(data), nil
	})
}

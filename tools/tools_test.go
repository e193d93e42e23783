package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	result string
	err    error
}

func (f fakeSearch) Search(ctx context.Context, query string) (string, error) {
	return f.result, f.err
}

type fakeChecker struct {
	verdict *SafetyVerdict
	err     error
}

func (f fakeChecker) Check(ctx context.Context, overview string, risks []string) (*SafetyVerdict, error) {
	return f.verdict, f.err
}

func TestCallUnknownToolReturnsObservation(t *testing.T) {
	r := NewRegistry(nil)

	out := r.Call(context.Background(), "does_not_exist", nil)
	assert.Contains(t, out, `unknown tool "does_not_exist"`)
}

func TestCallFailedHandlerReturnsFallbackText(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("flaky", func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("downstream down")
	})

	out := r.Call(context.Background(), "flaky", nil)
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "Proceed conservatively")
}

func TestSearchTool(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterSearch(fakeSearch{result: "guideline excerpt"})

	out := r.Call(context.Background(), "search_clinical_guidelines", map[string]any{
		"query": "panic exposure pacing",
	})
	assert.Equal(t, "guideline excerpt", out)

	// A missing query degrades to fallback text, not an error.
	out = r.Call(context.Background(), "search_clinical_guidelines", nil)
	assert.Contains(t, out, "unavailable")
}

func TestSafetyCheckerFailureYieldsNotSafeVerdict(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterSafetyChecker(fakeChecker{err: errors.New("checker offline")})

	out := r.Call(context.Background(), "check_safety_protocol", map[string]any{
		"plan_overview": "exposure exercise",
		"risk_factors":  []any{"panic attacks"},
	})

	var verdict SafetyVerdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.False(t, verdict.IsSafe)
	assert.Contains(t, verdict.RiskFlags, "checker_unavailable")
	assert.NotEmpty(t, verdict.RequiredModifications)
}

func TestSafetyCheckerPassThrough(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterSafetyChecker(fakeChecker{verdict: &SafetyVerdict{IsSafe: true, Reasoning: "clear"}})

	out := r.Call(context.Background(), "check_safety_protocol", map[string]any{
		"plan_overview": "thought record",
	})

	var verdict SafetyVerdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.True(t, verdict.IsSafe)
}

func TestNamesListsRegisteredTools(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterSearch(fakeSearch{})
	r.RegisterSafetyChecker(fakeChecker{})

	names := r.Names()
	assert.ElementsMatch(t, []string{"search_clinical_guidelines", "check_safety_protocol"}, names)
}

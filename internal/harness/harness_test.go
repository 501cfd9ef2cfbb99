package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden_CloneLifecycle(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "clone_lifecycle"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "deleted", result.State["chat.0"])
}

func TestRun_DeleteDisabled(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "delete_disabled"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]string{
		"chat.0":  "deleted",
		"chat.1":  "enabled",
		"files.0": "disabled",
	}, result.State)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "every expectation is wrong",
		AppID:       "app",
		Roles:       []string{"main"},
		Flow: []FlowStep{
			{Op: OpCreateClone, Role: "main", Expect: &ExpectClause{State: "disabled"}},
			{Op: OpDeleteClone, CloneID: "main.0"},
			{Op: OpCallZome, Target: "main", Zome: "main", Fn: "missing"},
			{Op: OpEnableClone, CloneID: "main.0", Expect: &ExpectClause{Error: "remote"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Method: "delete_clone_cell", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected state disabled, got enabled")
	assert.Contains(t, result.Errors[1], "flow[1] delete_clone: unexpected error")
	assert.Contains(t, result.Errors[2], "ribosome_error")
	assert.Contains(t, result.Errors[3], "expected remote error, got success")
	assert.Contains(t, result.Errors[4], "assertions[0]")
}

func TestRun_ZomeCallOutcomesAreTraced(t *testing.T) {
	scenario := &Scenario{
		Name:        "zome_errors",
		Description: "a missing function is a conductor error",
		AppID:       "app",
		Roles:       []string{"main"},
		Flow: []FlowStep{
			{
				Op: OpCallZome, Target: "main", Zome: "main", Fn: "missing",
				Expect: &ExpectClause{Error: "remote", Code: "ribosome_error"},
			},
			{
				Op: OpCallZome, Target: "nope", Zome: "main", Fn: FnFoo,
				Expect: &ExpectClause{Error: "precondition", Code: "cell_not_found"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Method: "zome_call", Outcome: "ribosome_error"},
			{Type: AssertTraceCount, Method: "zome_call", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

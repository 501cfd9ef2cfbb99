package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, API: "app", Method: "create_clone_cell", Outcome: OutcomeOK},
		{Seq: 2, API: "app", Method: "app_info", Outcome: OutcomeOK},
		{Seq: 3, API: "app", Method: "disable_clone_cell", Outcome: OutcomeOK},
		{Seq: 4, API: "admin", Method: "delete_clone_cell", Outcome: "internal_error"},
		{Seq: 5, API: "app", Method: "app_info", Outcome: OutcomeOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	r := &Result{Trace: sampleTrace()}

	assert.NoError(t, Evaluate(r, Assertion{Type: AssertTraceContains, Method: "disable_clone_cell"}))
	assert.NoError(t, Evaluate(r, Assertion{Type: AssertTraceContains, Method: "delete_clone_cell", Outcome: "internal_error"}))

	err := Evaluate(r, Assertion{Type: AssertTraceContains, Method: "delete_clone_cell", Outcome: OutcomeOK})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, ae.Error(), "[4] admin delete_clone_cell -> internal_error")
}

func TestAssertTraceOrder(t *testing.T) {
	r := &Result{Trace: sampleTrace()}

	assert.NoError(t, Evaluate(r, Assertion{
		Type:    AssertTraceOrder,
		Methods: []string{"create_clone_cell", "disable_clone_cell", "delete_clone_cell"},
	}))

	err := Evaluate(r, Assertion{
		Type:    AssertTraceOrder,
		Methods: []string{"delete_clone_cell", "create_clone_cell"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = Evaluate(r, Assertion{
		Type:    AssertTraceOrder,
		Methods: []string{"create_clone_cell", "enable_clone_cell"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing method: enable_clone_cell")
}

func TestAssertTraceCount(t *testing.T) {
	r := &Result{Trace: sampleTrace()}

	assert.NoError(t, Evaluate(r, Assertion{Type: AssertTraceCount, Method: "app_info", Count: 2}))
	assert.NoError(t, Evaluate(r, Assertion{Type: AssertTraceCount, Method: "zome_call", Count: 0}))

	err := Evaluate(r, Assertion{Type: AssertTraceCount, Method: "app_info", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	r := &Result{State: map[string]string{"chat.0": "deleted"}}

	assert.NoError(t, Evaluate(r, Assertion{Type: AssertFinalState, CloneID: "chat.0", State: "deleted"}))

	err := Evaluate(r, Assertion{Type: AssertFinalState, CloneID: "chat.0", State: "enabled"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: deleted")

	err = Evaluate(r, Assertion{Type: AssertFinalState, CloneID: "chat.1", State: "enabled"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "untracked")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

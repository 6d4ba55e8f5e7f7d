package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpaudit/internal/mcpmodel"
)

func TestRecorder_FullLifecycle(t *testing.T) {
	r := New(64)

	begin := r.BeginReasoning("d1", "mastra", "get me the course status", []string{"getMastraCourseStatus"}, mcpmodel.PhaseDiscovery)
	assert.Equal(t, mcpmodel.PhaseDiscovery, begin.Phase)
	assert.Equal(t, "d1", begin.DecisionID)
	assert.Equal(t, "get me the course status", begin.UserPrompt)
	assert.Equal(t, []string{"getMastraCourseStatus"}, begin.ToolsConsidered)

	sel, ok := r.RecordSelection("d1", []string{"getMastraCourseStatus"}, "matched course status intent", 0.9)
	require.True(t, ok)
	assert.Equal(t, mcpmodel.PhaseToolSelection, sel.Phase)
	assert.Equal(t, []string{"getMastraCourseStatus"}, sel.ToolsSelected)
	assert.InDelta(t, 0.9, sel.Confidence, 0.0001)

	call, ok := r.RecordToolCall("d1", "getMastraCourseStatus", nil)
	require.True(t, ok)
	assert.Equal(t, mcpmodel.PhaseToolCall, call.Phase)
	assert.Equal(t, "getMastraCourseStatus", call.ToolName)

	complete, ok := r.Complete("d1", true, "tool call succeeded")
	require.True(t, ok)
	assert.Equal(t, mcpmodel.PhaseCompletion, complete.Phase)
	assert.Contains(t, complete.Reasoning, "[Final] tool call succeeded")
	require.NotNil(t, complete.Success)
	assert.True(t, *complete.Success)
	require.NotNil(t, complete.ProcessingTimeMS)
	assert.GreaterOrEqual(t, *complete.ProcessingTimeMS, int64(0))

	_, ok = r.MostRecentOpen()
	assert.False(t, ok, "session should be removed from the table after Complete")
}

func TestRecorder_CompleteCarriesFailure(t *testing.T) {
	r := New(4)
	r.BeginReasoning("d1", "mastra", "send the report", []string{"sendEmail"}, mcpmodel.PhaseDiscovery)

	complete, ok := r.Complete("d1", false, "tool call failed")
	require.True(t, ok)
	require.NotNil(t, complete.Success)
	assert.False(t, *complete.Success)
}

func TestRecorder_UnknownDecisionIDFailsCleanly(t *testing.T) {
	r := New(4)
	_, ok := r.RecordSelection("missing", nil, "", 0)
	assert.False(t, ok)
	_, ok = r.RecordToolCall("missing", "tool", nil)
	assert.False(t, ok)
	_, ok = r.Complete("missing", true, "")
	assert.False(t, ok)
}

func TestRecorder_MostRecentOpenReturnsLatestTouched(t *testing.T) {
	r := New(64)
	r.BeginReasoning("a", "server", "prompt a", nil, mcpmodel.PhaseDiscovery)
	r.BeginReasoning("b", "server", "prompt b", nil, mcpmodel.PhaseDiscovery)

	id, ok := r.MostRecentOpen()
	require.True(t, ok)
	assert.Equal(t, "b", id)

	// touching "a" again should move it to the back
	r.RecordSelection("a", []string{"toolA"}, "reasoning", 0.5)
	id, ok = r.MostRecentOpen()
	require.True(t, ok)
	assert.Equal(t, "a", id)
}

func TestRecorder_EvictsOldestBeyondMaxSessions(t *testing.T) {
	r := New(2)
	r.BeginReasoning("1", "s", "p1", nil, mcpmodel.PhaseDiscovery)
	r.BeginReasoning("2", "s", "p2", nil, mcpmodel.PhaseDiscovery)
	r.BeginReasoning("3", "s", "p3", nil, mcpmodel.PhaseDiscovery)

	_, ok := r.RecordSelection("1", nil, "", 0)
	assert.False(t, ok, "oldest session should have been evicted once the table exceeded capacity")

	_, ok = r.RecordSelection("3", nil, "", 0)
	assert.True(t, ok)
}

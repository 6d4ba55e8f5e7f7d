package correlator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpaudit/internal/eventstore"
	"mcpaudit/internal/mcpmodel"
)

func TestLoadEvents_MergesStreamsAndFiltersBySince(t *testing.T) {
	dir := t.TempDir()
	store := eventstore.New(dir)
	defer store.Close()

	recent := time.Now().Add(-10 * time.Minute)
	old := time.Now().Add(-3 * time.Hour)

	require.NoError(t, store.Append(streamMessages, mcpmodel.MCPEvent{
		Timestamp:  recent,
		Direction:  mcpmodel.DirectionLLMToMCPClient,
		ServerName: "mastra",
		Protocol:   mcpmodel.ProtocolJSONRPC,
		Payload:    []byte(`{"id":1,"method":"tools/call","params":{"name":"t"}}`),
	}))
	require.NoError(t, store.Append(streamMessages, mcpmodel.MCPEvent{
		Timestamp:  old,
		Direction:  mcpmodel.DirectionLLMToMCPClient,
		ServerName: "mastra",
		Protocol:   mcpmodel.ProtocolJSONRPC,
		Payload:    []byte(`{"id":0,"method":"tools/list"}`),
	}))
	require.NoError(t, store.Append(streamDecisions, mcpmodel.LLMDecisionEvent{
		Timestamp:  recent.Add(time.Second),
		DecisionID: "d1",
		Phase:      mcpmodel.PhaseDiscovery,
	}))
	require.NoError(t, store.Append(streamPrompts, mcpmodel.UserPromptEvent{
		Timestamp: recent.Add(2 * time.Second),
		Prompt:    "call the tool",
		Source:    mcpmodel.PromptSourceManual,
	}))

	timeline, raw, err := LoadEvents(dir, time.Now().Add(-time.Hour), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, timeline, 3, "the 3-hour-old message falls outside the window")
	assert.Len(t, raw, 1)
	assert.IsType(t, mcpmodel.MCPEvent{}, timeline[0])
	assert.IsType(t, mcpmodel.LLMDecisionEvent{}, timeline[1])
	assert.IsType(t, mcpmodel.UserPromptEvent{}, timeline[2])
}

func TestLoadEvents_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store := eventstore.New(dir)

	require.NoError(t, store.Append(streamMessages, map[string]any{"timestamp": "not a time"}))
	require.NoError(t, store.Append(streamMessages, mcpmodel.MCPEvent{
		Timestamp: time.Now(),
		Payload:   []byte(`{"id":1,"result":{}}`),
	}))
	require.NoError(t, store.Close())

	timeline, _, err := LoadEvents(dir, time.Now().Add(-time.Hour), zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, timeline, 1)
}

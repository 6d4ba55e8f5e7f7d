package correlator

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"mcpaudit/internal/eventstore"
	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/paths"
)

const (
	streamMessages  = "mcp_audit_messages"
	streamDecisions = "llm_decision_trace"
	streamPrompts   = "user_prompts"
)

// LoadEvents reads every stream from stateDir, keeps records newer than
// since, and returns the merged timeline plus the raw MCP message events
// (callers emitting per-message metrics need the concrete slice, not the
// interface one). Lines that fail to decode - corrupt JSON, unparseable
// timestamps - are skipped with a warning; a reader must tolerate whatever
// a crashed or mid-flush writer left behind.
func LoadEvents(stateDir string, since time.Time, log zerolog.Logger) ([]mcpmodel.Event, []mcpmodel.MCPEvent, error) {
	var rawMessages []mcpmodel.MCPEvent
	var mcpEvents []mcpmodel.Event
	if err := eventstore.Read(paths.StreamFile(stateDir, streamMessages), func(line []byte) error {
		var ev mcpmodel.MCPEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			warnSkipped(log, streamMessages, err)
			return nil
		}
		if ev.Timestamp.After(since) {
			rawMessages = append(rawMessages, ev)
			mcpEvents = append(mcpEvents, ev)
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	var decisionEvents []mcpmodel.Event
	if err := eventstore.Read(paths.StreamFile(stateDir, streamDecisions), func(line []byte) error {
		var ev mcpmodel.LLMDecisionEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			warnSkipped(log, streamDecisions, err)
			return nil
		}
		if ev.Timestamp.After(since) {
			decisionEvents = append(decisionEvents, ev)
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	var promptEvents []mcpmodel.Event
	if err := eventstore.Read(paths.StreamFile(stateDir, streamPrompts), func(line []byte) error {
		var ev mcpmodel.UserPromptEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			warnSkipped(log, streamPrompts, err)
			return nil
		}
		if ev.Timestamp.After(since) {
			promptEvents = append(promptEvents, ev)
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	return Merge(mcpEvents, decisionEvents, promptEvents), rawMessages, nil
}

func warnSkipped(log zerolog.Logger, stream string, err error) {
	log.Warn().Str("stream", stream).Err(err).Msg("skipping invalid event line")
}

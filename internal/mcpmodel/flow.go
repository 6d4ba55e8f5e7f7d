package mcpmodel

import "time"

// Flow is a correlated group of events the timeline correlator judged to
// belong to one user-triggered interaction: a user prompt (if one was
// observed or inferred), the LLM reasoning that followed, and the MCP
// calls it produced.
type Flow struct {
	FlowID          string             `json:"flow_id"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	DurationMS      int64              `json:"duration_ms"`
	EventCount      int                `json:"event_count"`
	ServersInvolved []string           `json:"servers_involved"`
	CrossServerFlow bool               `json:"cross_server_flow"`
	HasUserContext  bool               `json:"has_user_context"`
	UserPrompt      string             `json:"user_prompt,omitempty"`
	UserTimestamp   *time.Time         `json:"user_timestamp,omitempty"`
	LLMReasoning    string             `json:"llm_reasoning,omitempty"`
	LLMDecisions    []LLMDecisionEvent `json:"llm_decisions"`
	MCPCalls        []MCPEvent         `json:"mcp_calls"`
	Success         bool               `json:"success"`
	Timeline        []Event            `json:"-"`
}

// MCPEvents returns every MCP message in the flow's timeline, requests and
// responses alike. Error codes and latencies live on response events, so
// anything scanning for failure signals must walk this rather than
// MCPCalls (which holds only the tools/call requests).
func (f Flow) MCPEvents() []MCPEvent {
	var out []MCPEvent
	for _, e := range f.Timeline {
		if m, ok := e.(MCPEvent); ok {
			out = append(out, m)
		}
	}
	return out
}

// RetryCount returns how many of the flow's MCP calls carried a non-zero
// retry_attempt, used by the scorer's retry frustration sub-score.
func (f Flow) RetryCount() int {
	n := 0
	for _, c := range f.MCPCalls {
		if c.RetryAttempt != nil && *c.RetryAttempt > 0 {
			n++
		}
	}
	return n
}

// ErrorCount returns how many MCP messages in the flow carried an error.
func (f Flow) ErrorCount() int {
	n := 0
	for _, c := range f.MCPEvents() {
		if c.ErrorObject() != nil {
			n++
		}
	}
	return n
}

// Package correlator implements the timeline correlator (C5): it merges
// heterogeneous event streams into one timeline by timestamp, then groups
// the timeline into flows wherever consecutive events fall within a fixed
// gap threshold. Grouping is pure timestamp proximity, not semantic
// correlation - the same approach the original analysis settled on after
// finding explicit session correlation too brittle.
package correlator

import (
	"sort"
	"strconv"
	"time"

	"mcpaudit/internal/mcpmodel"
)

// Correlator groups a merged event timeline into flows using a configured
// gap threshold.
type Correlator struct {
	timeWindow time.Duration
}

// New returns a Correlator using timeWindowSeconds as its flow-boundary gap.
func New(timeWindowSeconds int) *Correlator {
	return &Correlator{timeWindow: time.Duration(timeWindowSeconds) * time.Second}
}

// Merge stable-sorts events from every stream by timestamp. Events with
// equal timestamps keep their relative input order, so interleaving two
// already-sorted per-stream slices produces a single well-ordered timeline.
func Merge(streams ...[]mcpmodel.Event) []mcpmodel.Event {
	var all []mcpmodel.Event
	for _, s := range streams {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time().Before(all[j].Time())
	})
	return all
}

// GroupIntoFlows splits a merged timeline into flows: a new flow starts
// whenever the gap to the previous event exceeds the configured time
// window, or at the very first event.
func (c *Correlator) GroupIntoFlows(timeline []mcpmodel.Event) []mcpmodel.Flow {
	if len(timeline) == 0 {
		return nil
	}

	var flows []mcpmodel.Flow
	var current []mcpmodel.Event

	for _, event := range timeline {
		if len(current) == 0 || event.Time().Sub(current[len(current)-1].Time()) > c.timeWindow {
			if len(current) > 0 {
				flows = append(flows, summarizeFlow(current))
			}
			current = []mcpmodel.Event{event}
		} else {
			current = append(current, event)
		}
	}
	if len(current) > 0 {
		flows = append(flows, summarizeFlow(current))
	}
	return flows
}

// FilterByServer narrows flows to those involving any of the named
// servers. An empty or "all" filter returns flows unchanged.
func FilterByServer(flows []mcpmodel.Flow, serverFilter []string) []mcpmodel.Flow {
	if len(serverFilter) == 0 {
		return flows
	}
	wanted := make(map[string]struct{}, len(serverFilter))
	for _, s := range serverFilter {
		if s == "all" || s == "" {
			return flows
		}
		wanted[s] = struct{}{}
	}

	var out []mcpmodel.Flow
	for _, f := range flows {
		for _, s := range f.ServersInvolved {
			if _, ok := wanted[s]; ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func summarizeFlow(events []mcpmodel.Event) mcpmodel.Flow {
	start := events[0].Time()
	end := events[len(events)-1].Time()

	flow := mcpmodel.Flow{
		FlowID:     "flow_" + strconv.FormatInt(start.Unix(), 10),
		StartTime:  start,
		EndTime:    end,
		DurationMS: end.Sub(start).Milliseconds(),
		EventCount: len(events),
		Timeline:   events,
	}

	serversInvolved := map[string]struct{}{}
	decisionPrompt := ""
	var decisionPromptAt time.Time

	// Retry inference: a tools/call re-issued for a tool whose previous
	// attempt in this flow drew an error response is tagged with the
	// attempt number.
	attempts := map[string]int{}
	erroredSinceLastCall := map[string]bool{}
	pendingCallTool := map[string]string{}

	for _, e := range events {
		switch ev := e.(type) {
		case mcpmodel.LLMDecisionEvent:
			flow.LLMDecisions = append(flow.LLMDecisions, ev)
			if flow.LLMReasoning == "" && ev.Reasoning != "" {
				flow.LLMReasoning = ev.Reasoning
			}
			if decisionPrompt == "" && ev.UserPrompt != "" {
				decisionPrompt = ev.UserPrompt
				decisionPromptAt = ev.Timestamp
			}
		case mcpmodel.UserPromptEvent:
			if flow.UserPrompt == "" {
				flow.UserPrompt = ev.Prompt
				ts := ev.Timestamp
				flow.UserTimestamp = &ts
			}
		case mcpmodel.MCPEvent:
			serversInvolved[ev.ServerName] = struct{}{}
			switch {
			case ev.Direction == mcpmodel.DirectionLLMToMCPClient && ev.Method() == "tools/call":
				tool := ev.ToolName()
				if erroredSinceLastCall[tool] {
					attempts[tool]++
					attempt := attempts[tool]
					ev.RetryAttempt = &attempt
					erroredSinceLastCall[tool] = false
				}
				if id := ev.ID(); id != nil {
					pendingCallTool[string(id)] = tool
				}
				flow.MCPCalls = append(flow.MCPCalls, ev)
			case ev.Direction == mcpmodel.DirectionMCPClientToServer && ev.IsResponse():
				if id := ev.ID(); id != nil {
					if tool, ok := pendingCallTool[string(id)]; ok {
						delete(pendingCallTool, string(id))
						if ev.ErrorObject() != nil {
							erroredSinceLastCall[tool] = true
						}
					}
				}
			}
		}
	}

	// An explicit user prompt event wins over a prompt embedded in an LLM
	// decision; the decision's prompt is only a fallback.
	if flow.UserPrompt == "" && decisionPrompt != "" {
		flow.UserPrompt = decisionPrompt
		ts := decisionPromptAt
		flow.UserTimestamp = &ts
	}

	for s := range serversInvolved {
		flow.ServersInvolved = append(flow.ServersInvolved, s)
	}
	sort.Strings(flow.ServersInvolved)

	flow.CrossServerFlow = len(flow.ServersInvolved) > 1
	flow.HasUserContext = flow.UserPrompt != ""
	flow.Success = determineSuccess(events)
	return flow
}

// determineSuccess applies the one success rule used everywhere: a flow
// succeeded iff some LLM decision completed successfully, or it contains a
// tools/call request with a matching non-error response (paired by
// JSON-RPC id).
func determineSuccess(events []mcpmodel.Event) bool {
	llmSuccess := false
	toolCallIDs := map[string]bool{}
	hasMatchedCleanResponse := false

	for _, e := range events {
		switch ev := e.(type) {
		case mcpmodel.LLMDecisionEvent:
			if ev.Phase == mcpmodel.PhaseCompletion && ev.Success != nil && *ev.Success {
				llmSuccess = true
			}
		case mcpmodel.MCPEvent:
			if ev.Direction == mcpmodel.DirectionLLMToMCPClient && ev.Method() == "tools/call" {
				if id := ev.ID(); id != nil {
					toolCallIDs[string(id)] = true
				}
			}
			if ev.Direction == mcpmodel.DirectionMCPClientToServer && ev.IsResponse() && ev.ErrorObject() == nil {
				if id := ev.ID(); id != nil && toolCallIDs[string(id)] {
					hasMatchedCleanResponse = true
				}
			}
		}
	}

	return llmSuccess || hasMatchedCleanResponse
}

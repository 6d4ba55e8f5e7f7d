// Package decision implements the LLM decision recorder (C4): an
// in-memory, size-bounded table of in-flight reasoning sessions, each
// built up across begin/select/call calls and closed out by Complete.
// The session table is an LRU rather than an unbounded log so a host that
// never triggers a close (crashed mid-tool-call, odd client behavior)
// can't grow this table without bound.
package decision

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"mcpaudit/internal/mcpmodel"
)

// ToolCall is one tool invocation captured within a reasoning session.
type ToolCall struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Timestamp time.Time       `json:"timestamp"`
}

type session struct {
	decisionID      string
	serverName      string
	startedAt       time.Time
	userPrompt      string
	toolsConsidered []string
	toolsSelected   []string
	toolCalls       []ToolCall
	reasoning       string
	confidence      float64
}

// Recorder tracks active reasoning sessions keyed by decision id, evicting
// the least-recently-touched session once the table exceeds maxSessions.
type Recorder struct {
	mu          sync.Mutex
	maxSessions int
	order       *list.List
	sessions    map[string]*list.Element

	clock func() time.Time
}

// New returns a Recorder bounded to maxSessions concurrent reasoning
// sessions.
func New(maxSessions int) *Recorder {
	return &Recorder{
		maxSessions: maxSessions,
		order:       list.New(),
		sessions:    make(map[string]*list.Element),
		clock:       time.Now,
	}
}

// BeginReasoning opens a new reasoning session for decisionID (generated by
// the caller, typically the proxy's capture path) and returns the event
// recorded for it. phase distinguishes a tool-discovery session from an
// MCP-initialization one.
func (r *Recorder) BeginReasoning(decisionID, serverName, userPrompt string, availableTools []string, phase mcpmodel.DecisionPhase) mcpmodel.LLMDecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session{
		decisionID:      decisionID,
		serverName:      serverName,
		startedAt:       r.clock(),
		userPrompt:      userPrompt,
		toolsConsidered: append([]string(nil), availableTools...),
	}
	r.touch(decisionID, s)

	return mcpmodel.LLMDecisionEvent{
		Timestamp:       s.startedAt,
		DecisionID:      decisionID,
		ServerName:      serverName,
		Phase:           phase,
		UserPrompt:      userPrompt,
		ToolsConsidered: s.toolsConsidered,
	}
}

// RecordSelection records which tools the reasoning session chose.
func (r *Recorder) RecordSelection(decisionID string, selected []string, reasoning string, confidence float64) (mcpmodel.LLMDecisionEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.get(decisionID)
	if !ok {
		return mcpmodel.LLMDecisionEvent{}, false
	}
	s.toolsSelected = selected
	s.reasoning = reasoning
	s.confidence = confidence

	return mcpmodel.LLMDecisionEvent{
		Timestamp:       r.clock(),
		DecisionID:      decisionID,
		ServerName:      s.serverName,
		Phase:           mcpmodel.PhaseToolSelection,
		UserPrompt:      s.userPrompt,
		ToolsConsidered: s.toolsConsidered,
		ToolsSelected:   selected,
		Reasoning:       reasoning,
		Confidence:      confidence,
	}, true
}

// RecordToolCall appends a tool invocation to the session.
func (r *Recorder) RecordToolCall(decisionID, toolName string, args json.RawMessage) (mcpmodel.LLMDecisionEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.get(decisionID)
	if !ok {
		return mcpmodel.LLMDecisionEvent{}, false
	}
	now := r.clock()
	s.toolCalls = append(s.toolCalls, ToolCall{ToolName: toolName, Arguments: args, Timestamp: now})

	return mcpmodel.LLMDecisionEvent{
		Timestamp:     now,
		DecisionID:    decisionID,
		ServerName:    s.serverName,
		Phase:         mcpmodel.PhaseToolCall,
		UserPrompt:    s.userPrompt,
		ToolsSelected: s.toolsSelected,
		ToolName:      toolName,
		Detail:        args,
	}, true
}

// Complete closes a reasoning session and returns its final event carrying
// the outcome and the elapsed processing time, removing it from the table.
// Returns false if decisionID is unknown (already completed, evicted, or
// never opened).
func (r *Recorder) Complete(decisionID string, success bool, finalReasoning string) (mcpmodel.LLMDecisionEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.sessions[decisionID]
	if !ok {
		return mcpmodel.LLMDecisionEvent{}, false
	}
	s := elem.Value.(*session)
	r.order.Remove(elem)
	delete(r.sessions, decisionID)

	reasoning := s.reasoning
	if finalReasoning != "" {
		reasoning = reasoning + " [Final] " + finalReasoning
	}

	now := r.clock()
	processingMS := now.Sub(s.startedAt).Milliseconds()

	return mcpmodel.LLMDecisionEvent{
		Timestamp:        now,
		DecisionID:       decisionID,
		ServerName:       s.serverName,
		Phase:            mcpmodel.PhaseCompletion,
		UserPrompt:       s.userPrompt,
		ToolsConsidered:  s.toolsConsidered,
		ToolsSelected:    s.toolsSelected,
		Reasoning:        reasoning,
		ToolName:         lastToolName(s.toolCalls),
		Confidence:       s.confidence,
		ProcessingTimeMS: &processingMS,
		Success:          &success,
	}, true
}

// MostRecentOpen returns the decision id of the most recently touched
// still-open session, used to close "whichever session was waiting" when a
// response arrives without an explicit decision id (mirrors the original
// active-sessions-popped-by-recency behavior).
func (r *Recorder) MostRecentOpen() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.order.Len() == 0 {
		return "", false
	}
	return r.order.Back().Value.(*session).decisionID, true
}

func (r *Recorder) get(decisionID string) (*session, bool) {
	elem, ok := r.sessions[decisionID]
	if !ok {
		return nil, false
	}
	r.order.MoveToBack(elem)
	return elem.Value.(*session), true
}

func (r *Recorder) touch(decisionID string, s *session) {
	if elem, ok := r.sessions[decisionID]; ok {
		elem.Value = s
		r.order.MoveToBack(elem)
		return
	}
	elem := r.order.PushBack(s)
	r.sessions[decisionID] = elem

	if r.order.Len() > r.maxSessions {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.sessions, oldest.Value.(*session).decisionID)
	}
}

func lastToolName(calls []ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1].ToolName
}

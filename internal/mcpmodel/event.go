// Package mcpmodel is the shared vocabulary every other component imports:
// the captured event shapes, the correlated flow, and the scoring/report
// structures that get derived from them. Payloads are kept as raw JSON with
// narrow typed accessors rather than decoded into map[string]any, mirroring
// how this ecosystem's sum-type event streams are modeled.
package mcpmodel

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"
)

// Direction labels where a captured message sits in the interception path.
// The proxy tags its in-path (host → server) llm→mcp_client and its
// out-path (server → host) mcp_client→server: the labels name the hop the
// message is semantically making, not the pipe it was read from.
type Direction string

const (
	DirectionUserToLLM         Direction = "user→llm"
	DirectionLLMToMCPClient    Direction = "llm→mcp_client"
	DirectionMCPClientToServer Direction = "mcp_client→server"
	DirectionServerToAPI       Direction = "server→api"
)

// Protocol labels the transport a captured message arrived over. Stdio
// interception only ever sees JSON-RPC, but the field is carried per
// message so downstream analysis can distinguish mixed-transport flows.
type Protocol string

const (
	ProtocolJSONRPC   Protocol = "JSON-RPC"
	ProtocolHTTP      Protocol = "HTTP"
	ProtocolWebSocket Protocol = "WebSocket"
	ProtocolStdio     Protocol = "stdio"
)

// EventKind distinguishes the three record shapes this module captures.
type EventKind string

const (
	KindMCPEvent        EventKind = "mcp_event"
	KindLLMDecision     EventKind = "llm_decision"
	KindUserPromptEvent EventKind = "user_prompt"
)

// Event is the closed interface implemented by every record this module
// captures. Components that merge heterogeneous streams (the correlator)
// operate against this interface rather than concrete types.
type Event interface {
	Kind() EventKind
	Time() time.Time
}

// MCPEvent is a single JSON-RPC message observed crossing the proxy,
// captured on a copy of the forwarded bytes (never the forwarded bytes
// themselves).
type MCPEvent struct {
	Timestamp       time.Time        `json:"timestamp"`
	Direction       Direction        `json:"direction"`
	ServerName      string           `json:"server_name"`
	ServerProcessID int              `json:"server_process_id,omitempty"`
	Protocol        Protocol         `json:"protocol"`
	Payload         json.RawMessage  `json:"payload"`
	LatencyMS       *int64           `json:"latency_ms,omitempty"`
	ErrorCode       *string          `json:"error_code,omitempty"`
	RetryAttempt    *int             `json:"retry_attempt,omitempty"`
	EnhancedContext *EnhancedContext `json:"enhanced_context,omitempty"`
}

func (e MCPEvent) Kind() EventKind  { return KindMCPEvent }
func (e MCPEvent) Time() time.Time { return e.Timestamp }

// EnhancedContext records what the proxy inferred about a tools/call
// message at capture time, so later components don't need to re-parse the
// JSON-RPC payload.
type EnhancedContext struct {
	LLMInitiated bool   `json:"llm_initiated"`
	ToolMethod   string `json:"tool_method,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
}

// Method returns the JSON-RPC "method" field of the payload, or "" if the
// payload has none (e.g. a plain response).
func (e MCPEvent) Method() string {
	var m struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return ""
	}
	return m.Method
}

// ID returns the JSON-RPC "id" field as raw JSON, or nil if absent.
func (e MCPEvent) ID() json.RawMessage {
	var m struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil
	}
	return m.ID
}

// ErrorObject returns the JSON-RPC "error" field as raw JSON, or nil if the
// message carries no error.
func (e MCPEvent) ErrorObject() json.RawMessage {
	var m struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil
	}
	return m.Error
}

// IsResponse reports whether the payload looks like a JSON-RPC response
// (has "result" or "error" but no "method").
func (e MCPEvent) IsResponse() bool {
	var m struct {
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return false
	}
	return m.Method == "" && (len(m.Result) > 0 || len(m.Error) > 0)
}

// httpStatusPattern matches an HTTP-style status code embedded in an error
// message, the way servers that wrap REST backends surface upstream
// failures ("401 Unauthorized", "HTTP 503 from api.example.com").
var httpStatusPattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// DeriveErrorCode classifies the payload's error, if any: an HTTP-style
// status embedded in the error message wins (it carries the actionable
// cause), falling back to the raw JSON-RPC error code. Returns "" for
// messages with no error.
func (e MCPEvent) DeriveErrorCode() string {
	raw := e.ErrorObject()
	if raw == nil {
		return ""
	}
	var errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &errObj); err != nil {
		return "error"
	}
	if m := httpStatusPattern.FindString(errObj.Message); m != "" {
		return m
	}
	return strconv.Itoa(errObj.Code)
}

// ToolName returns the "name" field of a tools/call request's params, or ""
// if the payload isn't a tools/call request.
func (e MCPEvent) ToolName() string {
	if e.Method() != "tools/call" {
		return ""
	}
	var m struct {
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return ""
	}
	return m.Params.Name
}

// LLMDecisionEvent records a phase of reasoning the decision recorder
// observed around an MCP call: discovery, tool selection, the call itself,
// or completion.
type LLMDecisionEvent struct {
	Timestamp        time.Time       `json:"timestamp"`
	DecisionID       string          `json:"decision_id"`
	ServerName       string          `json:"server_name"`
	Phase            DecisionPhase   `json:"phase"`
	UserPrompt       string          `json:"user_prompt,omitempty"`
	ToolsConsidered  []string        `json:"tools_considered,omitempty"`
	ToolsSelected    []string        `json:"tools_selected,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	ProcessingTimeMS *int64          `json:"processing_time_ms,omitempty"`
	Success          *bool           `json:"success,omitempty"`
	Detail           json.RawMessage `json:"detail,omitempty"`
}

func (e LLMDecisionEvent) Kind() EventKind { return KindLLMDecision }
func (e LLMDecisionEvent) Time() time.Time { return e.Timestamp }

// DecisionPhase is one step of an LLM decision session's lifecycle.
type DecisionPhase string

const (
	PhaseDiscovery      DecisionPhase = "discovery"
	PhaseToolSelection  DecisionPhase = "tool_selection"
	PhaseToolCall       DecisionPhase = "tool_call"
	PhaseCompletion     DecisionPhase = "completion"
	PhaseInitialization DecisionPhase = "initialization"
)

// PromptSource distinguishes prompts a human logger recorded from prompts
// the proxy synthesized out of a tool call's name and arguments.
type PromptSource string

const (
	PromptSourceManual   PromptSource = "manual"
	PromptSourceInferred PromptSource = "inferred"
)

// UserPromptEvent captures the user-facing text inferred (or observed) to
// have triggered a downstream MCP interaction.
type UserPromptEvent struct {
	Timestamp      time.Time    `json:"timestamp"`
	ConversationID string       `json:"conversation_id"`
	Prompt         string       `json:"user_prompt"`
	Source         PromptSource `json:"source"`
}

func (e UserPromptEvent) Kind() EventKind { return KindUserPromptEvent }
func (e UserPromptEvent) Time() time.Time { return e.Timestamp }

// ConversationContext is the correlation record written alongside an
// inferred prompt: which tools were in play when the prompt (real or
// synthesized) kicked off a server interaction.
type ConversationContext struct {
	Prompt           string    `json:"user_prompt"`
	ConversationID   string    `json:"conversation_id"`
	MessageTimestamp time.Time `json:"message_timestamp"`
	ToolsAvailable   []string  `json:"tools_available,omitempty"`
	ToolsSuggested   []string  `json:"tools_suggested,omitempty"`
	HostInterface    string    `json:"host_interface"`
}

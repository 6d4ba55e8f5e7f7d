package mcpmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMCPEvent_Accessors(t *testing.T) {
	call := MCPEvent{Payload: json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"getWeather"}}`)}
	assert.Equal(t, "tools/call", call.Method())
	assert.Equal(t, "getWeather", call.ToolName())
	assert.JSONEq(t, "1", string(call.ID()))
	assert.Nil(t, call.ErrorObject())
	assert.False(t, call.IsResponse())

	response := MCPEvent{Payload: json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)}
	assert.Equal(t, "", response.Method())
	assert.Equal(t, "", response.ToolName())
	assert.True(t, response.IsResponse())
	assert.Nil(t, response.ErrorObject())

	errResponse := MCPEvent{Payload: json.RawMessage(`{"jsonrpc":"2.0","id":1,"error":{"code":401,"message":"unauthorized"}}`)}
	assert.True(t, errResponse.IsResponse())
	assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, string(errResponse.ErrorObject()))
}

func TestMCPEvent_ToolNameOnlyAppliesToToolCalls(t *testing.T) {
	listCall := MCPEvent{Payload: json.RawMessage(`{"method":"tools/list"}`)}
	assert.Equal(t, "", listCall.ToolName())
}

func TestFlow_RetryAndErrorCounts(t *testing.T) {
	retry := 1
	code := "500"
	call := MCPEvent{RetryAttempt: &retry, Payload: json.RawMessage(`{"method":"tools/call"}`)}
	errResp := MCPEvent{ErrorCode: &code, Payload: json.RawMessage(`{"error":{"code":500}}`)}
	okResp := MCPEvent{Payload: json.RawMessage(`{"result":{}}`)}
	flow := Flow{
		MCPCalls: []MCPEvent{call},
		Timeline: []Event{call, errResp, okResp},
	}
	assert.Equal(t, 1, flow.RetryCount())
	assert.Equal(t, 1, flow.ErrorCount())
}

func TestEvent_TimeOrdering(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var e Event = MCPEvent{Timestamp: now}
	assert.Equal(t, KindMCPEvent, e.Kind())
	assert.True(t, e.Time().Equal(now))
}

func TestMCPEvent_DeriveErrorCode(t *testing.T) {
	ok := MCPEvent{Payload: json.RawMessage(`{"id":1,"result":{}}`)}
	assert.Equal(t, "", ok.DeriveErrorCode())

	httpish := MCPEvent{Payload: json.RawMessage(`{"id":1,"error":{"code":-32001,"message":"401 Unauthorized"}}`)}
	assert.Equal(t, "401", httpish.DeriveErrorCode())

	plain := MCPEvent{Payload: json.RawMessage(`{"id":1,"error":{"code":-32600,"message":"invalid request"}}`)}
	assert.Equal(t, "-32600", plain.DeriveErrorCode())
}

package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/runtimeconfig"
)

func newScorer() *Scorer {
	return New(runtimeconfig.Defaults())
}

func TestPromptComplexity_InferredPromptsScoreLow(t *testing.T) {
	s := newScorer()
	flow := mcpmodel.Flow{UserPrompt: "[Inferred] User request requiring tool usage"}
	got := s.promptComplexity(flow)
	assert.Equal(t, 20.0, got)
}

func TestPromptComplexity_LongTechnicalPromptScoresHigh(t *testing.T) {
	s := newScorer()
	flow := mcpmodel.Flow{
		UserPrompt: "filter and aggregate the api config tokens before tomorrow for all of the endpoints",
	}
	got := s.promptComplexity(flow)
	assert.Greater(t, got, 60.0)
}

func TestRetryFrustration_PenalizesRetriesAndFailure(t *testing.T) {
	s := newScorer()
	flow := mcpmodel.Flow{
		Success: false,
		MCPCalls: []mcpmodel.MCPEvent{
			{Payload: json.RawMessage(`{"method":"tools/call"}`), RetryAttempt: ptrInt(1)},
			{Payload: json.RawMessage(`{"method":"tools/call"}`), RetryAttempt: ptrInt(2)},
		},
	}
	score, breakdown := s.retryFrustration(flow)
	assert.Greater(t, score, 10.0)
	assert.Equal(t, true, breakdown["failed_interaction"])
}

func TestConfigurationFriction_AuthErrorsDominate(t *testing.T) {
	s := newScorer()
	code401 := "401"
	flow := mcpmodel.Flow{
		MCPCalls: []mcpmodel.MCPEvent{
			{Payload: json.RawMessage(`{"error":{"code":401}}`), ErrorCode: &code401},
		},
	}
	score, breakdown := s.configurationFriction(flow)
	assert.Greater(t, score, 50.0)
	assert.Equal(t, 50.0, breakdown["auth_penalty"])
}

func TestAggregate_EmptyFlowsReturnsNeutralBaseline(t *testing.T) {
	s := newScorer()
	got := s.Aggregate(nil)
	assert.Equal(t, 50.0, got.OverallScore)
}

func TestGrade_Bands(t *testing.T) {
	cases := map[float64]string{
		0:   "A",
		20:  "A",
		21:  "B",
		40:  "B",
		41:  "C",
		60:  "C",
		61:  "D",
		80:  "D",
		81:  "F",
		100: "F",
	}
	for score, want := range cases {
		assert.Equal(t, want, mcpmodel.Grade(score), "score=%v", score)
	}
}

func ptrInt(i int) *int { return &i }

// mcpTimelineEvent builds an event the way the correlator would hand it to
// the scorer: payload plus proxy-derived error code.
func mcpTimelineEvent(direction mcpmodel.Direction, payload string, errCode string) mcpmodel.MCPEvent {
	ev := mcpmodel.MCPEvent{
		Direction: direction,
		Protocol:  mcpmodel.ProtocolJSONRPC,
		Payload:   json.RawMessage(payload),
	}
	if errCode != "" {
		ev.ErrorCode = &errCode
	}
	return ev
}

func TestScore_SingleCleanToolCallGradesA(t *testing.T) {
	s := newScorer()
	call := mcpTimelineEvent(mcpmodel.DirectionLLMToMCPClient, `{"id":1,"method":"tools/call","params":{"name":"get_weather","arguments":{"city":"London"}}}`, "")
	resp := mcpTimelineEvent(mcpmodel.DirectionMCPClientToServer, `{"id":1,"result":{"temp":15}}`, "")
	flow := mcpmodel.Flow{
		Success:    true,
		DurationMS: 120,
		EventCount: 2,
		MCPCalls:   []mcpmodel.MCPEvent{call},
		Timeline:   []mcpmodel.Event{call, resp},
	}

	m := s.Score(flow)
	retry, _ := s.retryFrustration(flow)
	assert.Equal(t, 10.0, retry, "a clean call should carry only the base retry score")
	assert.Equal(t, "A", mcpmodel.Grade(m.OverallScore))
}

func TestScore_AuthFailureThenRetryRaisesFrictionScores(t *testing.T) {
	s := newScorer()
	attempt := 1
	call1 := mcpTimelineEvent(mcpmodel.DirectionLLMToMCPClient, `{"id":1,"method":"tools/call","params":{"name":"get_weather"}}`, "")
	errResp := mcpTimelineEvent(mcpmodel.DirectionMCPClientToServer, `{"id":1,"error":{"code":-32001,"message":"401"}}`, "401")
	call2 := mcpTimelineEvent(mcpmodel.DirectionLLMToMCPClient, `{"id":2,"method":"tools/call","params":{"name":"get_weather"}}`, "")
	call2.RetryAttempt = &attempt
	okResp := mcpTimelineEvent(mcpmodel.DirectionMCPClientToServer, `{"id":2,"result":{}}`, "")

	flow := mcpmodel.Flow{
		Success:    true,
		DurationMS: 320,
		EventCount: 4,
		MCPCalls:   []mcpmodel.MCPEvent{call1, call2},
		Timeline:   []mcpmodel.Event{call1, errResp, call2, okResp},
	}

	config, _ := s.configurationFriction(flow)
	assert.GreaterOrEqual(t, config, 60.0, "one 401 on top of the base score")

	retry, _ := s.retryFrustration(flow)
	assert.GreaterOrEqual(t, retry, 35.0, "one retry on top of the base score")
}

func TestIntegrationCognition_CountsProtocolsDirectionsAndDepthOnce(t *testing.T) {
	s := newScorer()
	deep := mcpTimelineEvent(mcpmodel.DirectionLLMToMCPClient, `{"a":{"b":{"c":{"d":{"e":1}}}}}`, "")
	alsoDeep := mcpTimelineEvent(mcpmodel.DirectionLLMToMCPClient, `{"x":{"y":{"z":{"w":{"v":1}}}}}`, "")
	flow := mcpmodel.Flow{Timeline: []mcpmodel.Event{deep, alsoDeep}}

	// one protocol, one direction class, nested depth bonus applied once
	assert.Equal(t, 20.0+10.0+15.0, s.integrationCognition(flow))
}

func TestWeights_SumToOne(t *testing.T) {
	sum := weights.promptComplexity + weights.contextSwitching +
		weights.retryFrustration + weights.configurationFriction +
		weights.integrationCognition
	assert.InDelta(t, 1.0, sum, 1e-9)
}

// Package scoring implements the cognitive-load scoring engine: five
// rule-based sub-scores derived from a correlated flow, combined into a
// weighted overall score and letter grade. None of this is model-driven;
// every point value and threshold here is a fixed rule, not a learned
// weight, so the same flow always scores the same way.
package scoring

import (
	"regexp"
	"strings"

	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/runtimeconfig"
)

// Scorer computes cognitive load metrics for flows using a fixed baseline
// latency tunable.
type Scorer struct {
	baselineLatencyMS int64
}

// New returns a Scorer using the baseline latency from cfg.
func New(cfg runtimeconfig.Config) *Scorer {
	return &Scorer{baselineLatencyMS: cfg.BaselineLatencyMS}
}

var weights = struct {
	promptComplexity      float64
	contextSwitching      float64
	retryFrustration      float64
	configurationFriction float64
	integrationCognition  float64
}{
	promptComplexity:      0.15,
	contextSwitching:      0.20,
	retryFrustration:      0.30,
	configurationFriction: 0.25,
	integrationCognition:  0.10,
}

// Score computes the full set of cognitive load metrics for a single flow.
func (s *Scorer) Score(flow mcpmodel.Flow) mcpmodel.CognitiveLoadMetrics {
	prompt := s.promptComplexity(flow)
	context := s.contextSwitching(flow)
	retry, retryBreakdown := s.retryFrustration(flow)
	config, configBreakdown := s.configurationFriction(flow)
	integration := s.integrationCognition(flow)

	overall := prompt*weights.promptComplexity +
		context*weights.contextSwitching +
		retry*weights.retryFrustration +
		config*weights.configurationFriction +
		integration*weights.integrationCognition
	if overall > 100 {
		overall = 100
	}

	return mcpmodel.CognitiveLoadMetrics{
		OverallScore:           overall,
		PromptComplexity:       prompt,
		ContextSwitching:       context,
		RetryFrustration:       retry,
		ConfigurationFriction:  config,
		IntegrationCognition:   integration,
		RetryBreakdown:         retryBreakdown,
		ConfigurationBreakdown: configBreakdown,
	}
}

// Aggregate averages per-flow metrics, matching how the report assembler
// rolls a window of flows into one headline score. The breakdown maps
// carried on the result are taken from the most recent flow, mirroring the
// single-sample breakdown the original analysis keeps for explanation.
func (s *Scorer) Aggregate(flows []mcpmodel.Flow) mcpmodel.CognitiveLoadMetrics {
	if len(flows) == 0 {
		return mcpmodel.CognitiveLoadMetrics{
			OverallScore:          50,
			PromptComplexity:      50,
			ContextSwitching:      50,
			RetryFrustration:      50,
			ConfigurationFriction: 50,
			IntegrationCognition:  50,
		}
	}

	var sum mcpmodel.CognitiveLoadMetrics
	var last mcpmodel.CognitiveLoadMetrics
	for _, f := range flows {
		m := s.Score(f)
		sum.OverallScore += m.OverallScore
		sum.PromptComplexity += m.PromptComplexity
		sum.ContextSwitching += m.ContextSwitching
		sum.RetryFrustration += m.RetryFrustration
		sum.ConfigurationFriction += m.ConfigurationFriction
		sum.IntegrationCognition += m.IntegrationCognition
		last = m
	}
	n := float64(len(flows))
	return mcpmodel.CognitiveLoadMetrics{
		OverallScore:           round1(sum.OverallScore / n),
		PromptComplexity:       round1(sum.PromptComplexity / n),
		ContextSwitching:       round1(sum.ContextSwitching / n),
		RetryFrustration:       round1(sum.RetryFrustration / n),
		ConfigurationFriction:  round1(sum.ConfigurationFriction / n),
		IntegrationCognition:   round1(sum.IntegrationCognition / n),
		RetryBreakdown:         last.RetryBreakdown,
		ConfigurationBreakdown: last.ConfigurationBreakdown,
	}
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

// FrictionPoints returns the human-readable friction callouts derived from
// an aggregated score, one per sub-score over 60, falling back to a single
// "no friction" message when none qualify.
func FrictionPoints(m mcpmodel.CognitiveLoadMetrics) []string {
	var points []string
	if m.PromptComplexity > 60 {
		points = append(points, "High prompt complexity detected")
	}
	if m.ContextSwitching > 60 {
		points = append(points, "Frequent context switching required")
	}
	if m.RetryFrustration > 60 {
		points = append(points, "Users experiencing retry frustration")
	}
	if m.ConfigurationFriction > 60 {
		points = append(points, "Configuration complexity causing friction")
	}
	if m.IntegrationCognition > 60 {
		points = append(points, "Tool integration complexity")
	}
	if len(points) == 0 {
		points = append(points, "No significant friction points detected")
	}
	return points
}

var technicalIndicators = []string{
	"api", "config", "authentication", "parameter", "endpoint", "json", "xml",
	"database", "query", "schema", "token", "oauth", "webhook", "integration",
	"middleware", "proxy", "cache", "sync", "async", "batch", "stream",
}

var complexityIndicators = []string{
	"if", "when", "unless", "where", "filter", "sort", "group", "aggregate",
	"combine", "merge", "transform", "convert", "validate", "parse",
}

var actionVerbs = []string{
	"create", "update", "delete", "get", "set", "add", "remove", "modify",
	"send", "receive", "upload", "download", "import", "export", "backup",
	"restore", "sync", "copy", "move", "rename", "list", "search", "find",
}

var timeWords = []string{
	"today", "tomorrow", "yesterday", "week", "month", "year", "hour",
	"minute", "day", "now", "later", "before", "after", "since", "until",
}

var quantityWords = []string{"all", "every", "each", "most", "some", "many", "few"}

var hasDigit = regexp.MustCompile(`\d+`)

func (s *Scorer) promptComplexity(flow mcpmodel.Flow) float64 {
	query := strings.ToLower(strings.TrimSpace(flow.UserPrompt))

	if strings.Contains(query, "[inferred]") ||
		strings.Contains(query, "user request requiring") ||
		strings.Contains(query, "unknown") ||
		len(query) < 3 {
		return 20.0
	}

	score := 20.0

	words := strings.Fields(query)
	switch {
	case len(words) > 10:
		score += 25
	case len(words) > 5:
		score += 15
	case len(words) > 2:
		score += 5
	}

	score += float64(countContains(query, technicalIndicators)) * 8
	score += float64(countContains(query, complexityIndicators)) * 10

	actionCount := countContains(query, actionVerbs)
	if actionCount > 2 {
		score += float64(actionCount-1) * 12
	}

	if anyContains(query, timeWords) {
		score += 15
	}

	if hasDigit.MatchString(query) || anyContains(query, quantityWords) {
		score += 10
	}

	return capScore(score)
}

func countContains(query string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(query, t) {
			n++
		}
	}
	return n
}

func anyContains(query string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(query, t) {
			return true
		}
	}
	return false
}

// flowMessages returns the flow's full message sequence when the in-memory
// timeline is available, falling back to the tool-call list for flows that
// were rebuilt from serialized form and carry only their calls.
func flowMessages(flow mcpmodel.Flow) []mcpmodel.MCPEvent {
	if msgs := flow.MCPEvents(); len(msgs) > 0 {
		return msgs
	}
	return flow.MCPCalls
}

func (s *Scorer) contextSwitching(flow mcpmodel.Flow) float64 {
	traces := flowMessages(flow)
	if len(traces) < 2 {
		return 20.0
	}

	score := 0.0

	directionChanges := 0
	var lastDirection mcpmodel.Direction
	for _, m := range traces {
		if lastDirection != "" && m.Direction != lastDirection {
			directionChanges++
		}
		lastDirection = m.Direction
	}
	score += float64(directionChanges) * 10

	toolChanges := 0
	lastMethod := ""
	for _, m := range traces {
		method := m.Method()
		if method != "" && lastMethod != "" && method != lastMethod {
			toolChanges++
		}
		if method != "" {
			lastMethod = method
		}
	}
	score += float64(toolChanges) * 15

	if score == 0 && len(traces) > 1 {
		score = 5.0
	}

	return capScore(score)
}

func (s *Scorer) retryFrustration(flow mcpmodel.Flow) (float64, map[string]any) {
	score := 10.0
	breakdown := map[string]any{
		"base_score":          10.0,
		"retry_penalty":        0.0,
		"retry_count":          flow.RetryCount(),
		"failure_penalty":      0.0,
		"failed_interaction":   !flow.Success,
		"error_penalty":        0.0,
		"actual_error_count":   0,
		"latency_penalty":      0.0,
		"latency_ms":           flow.DurationMS,
		"latency_threshold_ms": s.baselineLatencyMS * 2,
		"explanations":         []string{},
	}
	explanations := []string{}

	if retryCount := flow.RetryCount(); retryCount > 0 {
		penalty := float64(retryCount) * 25
		score += penalty
		breakdown["retry_penalty"] = penalty
		explanations = append(explanations, "Retry attempts detected")
	}

	if !flow.Success {
		score += 40
		breakdown["failure_penalty"] = 40.0
		explanations = append(explanations, "Interaction failed to complete successfully")
	}

	actualErrors := 0
	for _, m := range flowMessages(flow) {
		code := errorCode(m)
		if code == "" {
			continue
		}
		if strings.HasPrefix(code, "4") || strings.HasPrefix(code, "5") ||
			code == "timeout" || code == "connection_error" || code == "parse_error" {
			actualErrors++
		}
	}
	errorPenalty := float64(actualErrors) * 20
	score += errorPenalty
	breakdown["error_penalty"] = errorPenalty
	breakdown["actual_error_count"] = actualErrors
	if actualErrors > 0 {
		explanations = append(explanations, "Error messages detected")
	}

	if flow.DurationMS > 0 && flow.DurationMS > s.baselineLatencyMS*2 {
		latencyPenalty := 30.0
		if flow.Success {
			latencyPenalty = 15.0
		}
		score += latencyPenalty
		breakdown["latency_penalty"] = latencyPenalty
		explanations = append(explanations, "Slow response time exceeds threshold")
	}

	breakdown["explanations"] = explanations
	return capScore(score), breakdown
}

func (s *Scorer) configurationFriction(flow mcpmodel.Flow) (float64, map[string]any) {
	score := 10.0
	breakdown := map[string]any{
		"base_score":           10.0,
		"auth_penalty":         0.0,
		"param_penalty":        0.0,
		"config_keyword_penalty": 0.0,
		"latency_penalty":      0.0,
		"latency_ms":           flow.DurationMS,
		"latency_threshold_ms": s.baselineLatencyMS * 3,
		"explanations":         []string{},
	}
	explanations := []string{}

	authErrors, paramErrors := 0, 0
	for _, m := range flowMessages(flow) {
		code := errorCode(m)
		switch code {
		case "401", "403":
			authErrors++
			score += 50
		case "400", "422":
			paramErrors++
			score += 30
		}
	}
	if authErrors > 0 {
		breakdown["auth_penalty"] = float64(authErrors) * 50
		explanations = append(explanations, "Authentication errors detected")
	}
	if paramErrors > 0 {
		breakdown["param_penalty"] = float64(paramErrors) * 30
		explanations = append(explanations, "Parameter validation errors detected")
	}

	configKeywordCount := 0
	for _, m := range flowMessages(flow) {
		if errorCode(m) == "" {
			continue
		}
		payload := strings.ToLower(string(m.Payload))
		if strings.Contains(payload, "api key") || strings.Contains(payload, "token") ||
			strings.Contains(payload, "auth") || strings.Contains(payload, "config") {
			configKeywordCount++
			score += 35
		}
	}
	if configKeywordCount > 0 {
		breakdown["config_keyword_penalty"] = float64(configKeywordCount) * 35
		explanations = append(explanations, "Configuration keywords present in error payloads")
	}

	if flow.DurationMS > s.baselineLatencyMS*3 {
		latencyPenalty := 25.0
		if flow.Success {
			latencyPenalty = 10.0
		}
		score += latencyPenalty
		breakdown["latency_penalty"] = latencyPenalty
		explanations = append(explanations, "Slow response time exceeds threshold")
	}

	breakdown["explanations"] = explanations
	return capScore(score), breakdown
}

func (s *Scorer) integrationCognition(flow mcpmodel.Flow) float64 {
	score := 20.0

	msgs := flowMessages(flow)

	protocols := map[mcpmodel.Protocol]struct{}{}
	directions := map[mcpmodel.Direction]struct{}{}
	for _, m := range msgs {
		if m.Protocol != "" {
			protocols[m.Protocol] = struct{}{}
		}
		directions[m.Direction] = struct{}{}
	}
	if len(protocols) > 1 {
		score += 20
	}
	score += float64(len(directions)) * 10

	for _, m := range msgs {
		if jsonDepth(m.Payload) > 3 {
			score += 15
			break
		}
	}

	return capScore(score)
}

func capScore(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}

// errorCode prefers the code the proxy classified at capture time, deriving
// one from the payload for events that predate capture-time classification.
func errorCode(m mcpmodel.MCPEvent) string {
	if m.ErrorCode != nil {
		return *m.ErrorCode
	}
	return m.DeriveErrorCode()
}

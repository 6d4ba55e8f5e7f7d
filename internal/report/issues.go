// Package report assembles the final usability report (C8): it detects
// friction patterns across a window of flows, turns them into prioritized
// recommendations, and rolls everything up with the scoring engine's
// aggregated cognitive load into one mcpmodel.UsabilityReport.
package report

import (
	"fmt"

	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/scoring"
)

const (
	highCognitiveThreshold = 80.0
)

// DetectIssues runs the fixed set of friction detectors over a window of
// flows and returns every issue that crosses its trigger threshold.
func DetectIssues(flows []mcpmodel.Flow, scorer *scoring.Scorer) []mcpmodel.UsabilityIssue {
	var issues []mcpmodel.UsabilityIssue
	issues = append(issues, detectAuthenticationIssues(flows)...)
	issues = append(issues, detectParameterIssues(flows)...)
	issues = append(issues, detectErrorRecoveryIssues(flows)...)
	issues = append(issues, detectCognitiveOverload(flows, scorer)...)
	issues = append(issues, detectToolDiscoveryIssues(flows)...)
	return issues
}

// flowMessages returns the flow's full message sequence when the in-memory
// timeline is available, falling back to the tool-call list for flows
// rebuilt from serialized form.
func flowMessages(flow mcpmodel.Flow) []mcpmodel.MCPEvent {
	if msgs := flow.MCPEvents(); len(msgs) > 0 {
		return msgs
	}
	return flow.MCPCalls
}

func eventErrorCode(m mcpmodel.MCPEvent) string {
	if m.ErrorCode != nil {
		return *m.ErrorCode
	}
	return m.DeriveErrorCode()
}

func hasErrorCode(flow mcpmodel.Flow, codes ...string) bool {
	for _, m := range flowMessages(flow) {
		got := eventErrorCode(m)
		if got == "" {
			continue
		}
		for _, c := range codes {
			if got == c {
				return true
			}
		}
	}
	return false
}

func ptr(f float64) *float64 { return &f }

func detectAuthenticationIssues(flows []mcpmodel.Flow) []mcpmodel.UsabilityIssue {
	total := len(flows)
	if total == 0 {
		return nil
	}
	authFailures := 0
	for _, f := range flows {
		if hasErrorCode(f, "401", "403") {
			authFailures++
		}
	}
	if authFailures == 0 {
		return nil
	}

	failureRate := float64(authFailures) / float64(total)
	var severity mcpmodel.IssueSeverity
	var description, fix string
	switch {
	case failureRate > 0.5:
		severity = mcpmodel.SeverityCritical
		description = fmt.Sprintf("High authentication failure rate (%.1f%%)", failureRate*100)
		fix = "Implement guided API key setup with validation"
	case failureRate > 0.2:
		severity = mcpmodel.SeverityHigh
		description = fmt.Sprintf("Moderate authentication failures (%.1f%%)", failureRate*100)
		fix = "Add clear API key configuration instructions"
	default:
		severity = mcpmodel.SeverityMedium
		description = fmt.Sprintf("Some authentication failures detected (%.1f%%)", failureRate*100)
		fix = "Improve error messages for authentication failures"
	}

	improvement := 20.0
	if severity == mcpmodel.SeverityCritical {
		improvement = 30.0
	}

	return []mcpmodel.UsabilityIssue{{
		Type:                 mcpmodel.IssueAuthenticationFriction,
		Severity:             severity,
		Description:          description,
		Frequency:            authFailures,
		ImpactDescription:    "Users cannot access core functionality",
		SuggestedFix:         fix,
		EstimatedImprovement: ptr(improvement),
	}}
}

func detectParameterIssues(flows []mcpmodel.Flow) []mcpmodel.UsabilityIssue {
	total := len(flows)
	if total == 0 {
		return nil
	}
	paramErrors := 0
	for _, f := range flows {
		if hasErrorCode(f, "400", "422") {
			paramErrors++
		}
	}
	if paramErrors == 0 {
		return nil
	}
	errorRate := float64(paramErrors) / float64(total)
	if errorRate <= 0.3 {
		return nil
	}
	return []mcpmodel.UsabilityIssue{{
		Type:                 mcpmodel.IssueParameterConfusion,
		Severity:             mcpmodel.SeverityHigh,
		Description:          fmt.Sprintf("High parameter error rate (%.1f%%)", errorRate*100),
		Frequency:            paramErrors,
		ImpactDescription:    "Users struggle with correct parameter format",
		SuggestedFix:         "Add parameter validation and examples",
		EstimatedImprovement: ptr(25.0),
	}}
}

func detectErrorRecoveryIssues(flows []mcpmodel.Flow) []mcpmodel.UsabilityIssue {
	highRetry := 0
	for _, f := range flows {
		if f.RetryCount() > 2 {
			highRetry++
		}
	}
	if highRetry == 0 {
		return nil
	}
	return []mcpmodel.UsabilityIssue{{
		Type:                 mcpmodel.IssueErrorRecovery,
		Severity:             mcpmodel.SeverityMedium,
		Description:          fmt.Sprintf("%d interactions required excessive retries", highRetry),
		Frequency:            highRetry,
		ImpactDescription:    "Users get stuck in retry loops",
		SuggestedFix:         "Improve error messages and recovery guidance",
		EstimatedImprovement: ptr(15.0),
	}}
}

func detectCognitiveOverload(flows []mcpmodel.Flow, scorer *scoring.Scorer) []mcpmodel.UsabilityIssue {
	if len(flows) == 0 {
		return nil
	}
	highLoad := 0
	for _, f := range flows {
		if scorer.Score(f).OverallScore > highCognitiveThreshold {
			highLoad++
		}
	}
	if float64(highLoad) <= float64(len(flows))*0.4 {
		return nil
	}
	return []mcpmodel.UsabilityIssue{{
		Type:                 mcpmodel.IssueCognitiveOverload,
		Severity:             mcpmodel.SeverityHigh,
		Description:          "High cognitive load detected in multiple interactions",
		Frequency:            highLoad,
		ImpactDescription:    "Users experience mental fatigue and confusion",
		SuggestedFix:         "Simplify interaction patterns and reduce complexity",
		EstimatedImprovement: ptr(35.0),
	}}
}

func detectToolDiscoveryIssues(flows []mcpmodel.Flow) []mcpmodel.UsabilityIssue {
	toolListCalls, successfulCalls := 0, 0
	for _, f := range flows {
		hasList, hasSuccess := false, false
		for _, m := range flowMessages(f) {
			switch m.Method() {
			case "tools/list":
				hasList = true
			case "tools/call":
				if eventErrorCode(m) == "" {
					hasSuccess = true
				}
			}
		}
		if hasList {
			toolListCalls++
		}
		if hasSuccess {
			successfulCalls++
		}
	}
	if toolListCalls == 0 {
		return nil
	}
	denom := toolListCalls
	if denom < 1 {
		denom = 1
	}
	if float64(successfulCalls)/float64(denom) >= 0.5 {
		return nil
	}
	return []mcpmodel.UsabilityIssue{{
		Type:                 mcpmodel.IssueToolDiscovery,
		Severity:             mcpmodel.SeverityMedium,
		Description:          "Low success rate after tool discovery",
		Frequency:            toolListCalls - successfulCalls,
		ImpactDescription:    "Users can't effectively use discovered tools",
		SuggestedFix:         "Improve tool documentation and examples",
		EstimatedImprovement: ptr(20.0),
	}}
}

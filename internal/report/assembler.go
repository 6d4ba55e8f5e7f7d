package report

import (
	"time"

	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/scoring"
)

// Assemble builds the complete usability report for serverName from flows
// observed over the given analysis window.
func Assemble(serverName string, windowHours float64, flows []mcpmodel.Flow, scorer *scoring.Scorer, now time.Time) mcpmodel.UsabilityReport {
	load := scorer.Aggregate(flows)
	issues := DetectIssues(flows, scorer)
	recs := GenerateRecommendations(issues, load)

	report := mcpmodel.UsabilityReport{
		GeneratedAt:           now,
		AnalysisWindowHours:   windowHours,
		ServerName:            serverName,
		OverallUsabilityScore: load.OverallScore,
		Grade:                 mcpmodel.Grade(load.OverallScore),
		SessionSummary:        sessionSummary(flows),
		CognitiveLoad:         load,
		CommunicationPatterns: communicationPatterns(flows),
		DetectedIssues:        issues,
		Recommendations:       recs,
	}
	report.PrimaryConcerns = primaryConcerns(issues)
	report.KeyWins = keyWins(flows, load)
	return report
}

func sessionSummary(flows []mcpmodel.Flow) mcpmodel.SessionSummary {
	if len(flows) == 0 {
		return mcpmodel.SessionSummary{AbandonmentRate: 1.0}
	}

	userFlows := 0
	successfulUserFlows := 0
	var totalDuration int64
	for _, f := range flows {
		totalDuration += f.DurationMS
		if f.HasUserContext {
			userFlows++
			if f.Success {
				successfulUserFlows++
			}
		}
	}

	abandonment := 1.0
	if userFlows > 0 {
		abandonment = 1.0 - float64(successfulUserFlows)/float64(userFlows)
	}

	return mcpmodel.SessionSummary{
		TotalSessions:         len(flows),
		SuccessfulCompletions: successfulUserFlows,
		AvgSessionDurationMS:  float64(totalDuration) / float64(len(flows)),
		AbandonmentRate:       abandonment,
	}
}

func communicationPatterns(flows []mcpmodel.Flow) mcpmodel.CommunicationPatterns {
	if len(flows) == 0 {
		return mcpmodel.CommunicationPatterns{}
	}

	var totalDuration int64
	retryFlows := 0
	toolListCalls, successfulToolCalls := 0, 0
	firstAttemptSuccess := 0
	var totalParamErrors int

	for _, f := range flows {
		totalDuration += f.DurationMS
		if f.RetryCount() > 0 {
			retryFlows++
		}
		hasList := false
		for _, m := range flowMessages(f) {
			switch m.Method() {
			case "tools/list":
				hasList = true
			case "tools/call":
				if eventErrorCode(m) == "" {
					successfulToolCalls++
				}
			}
			if code := eventErrorCode(m); code == "400" || code == "422" {
				totalParamErrors++
			}
		}
		if hasList {
			toolListCalls++
		}
		if f.Success && f.RetryCount() == 0 {
			firstAttemptSuccess++
		}
	}

	discoveryRate := 0.0
	if toolListCalls > 0 {
		discoveryRate = float64(successfulToolCalls) / float64(toolListCalls)
	}

	return mcpmodel.CommunicationPatterns{
		AvgResponseTimeMS:        float64(totalDuration) / float64(len(flows)),
		RetryRate:                float64(retryFlows) / float64(len(flows)),
		ToolDiscoverySuccessRate: discoveryRate,
		FirstAttemptSuccessRate:  float64(firstAttemptSuccess) / float64(len(flows)),
		AvgParameterErrors:       float64(totalParamErrors) / float64(len(flows)),
	}
}

func primaryConcerns(issues []mcpmodel.UsabilityIssue) []string {
	var out []string
	for _, issue := range issues {
		if issue.Severity == mcpmodel.SeverityCritical || issue.Severity == mcpmodel.SeverityHigh {
			out = append(out, issue.Description)
		}
	}
	return out
}

func keyWins(flows []mcpmodel.Flow, load mcpmodel.CognitiveLoadMetrics) []string {
	if len(flows) == 0 {
		return nil
	}
	var wins []string
	successCount := 0
	for _, f := range flows {
		if f.Success {
			successCount++
		}
	}
	rate := float64(successCount) / float64(len(flows))
	if rate == 1.0 {
		wins = append(wins, "Perfect reliability - all interactions completed successfully")
	} else if rate >= 0.95 {
		wins = append(wins, "Excellent reliability across interactions")
	}
	if load.OverallScore <= 20 {
		wins = append(wins, "Outstanding cognitive experience - users can focus on their goals")
	}
	return wins
}

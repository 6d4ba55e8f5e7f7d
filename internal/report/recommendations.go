package report

import (
	"fmt"
	"sort"
	"strings"

	"mcpaudit/internal/mcpmodel"
)

// GenerateRecommendations turns detected issues, plus a standalone
// high-cognitive-load callout, into prioritized recommendations.
func GenerateRecommendations(issues []mcpmodel.UsabilityIssue, load mcpmodel.CognitiveLoadMetrics) []mcpmodel.UsabilityRecommendation {
	var recs []mcpmodel.UsabilityRecommendation
	for _, issue := range issues {
		recs = append(recs, recommendationForIssue(issue))
	}
	if load.OverallScore > highCognitiveThreshold {
		recs = append(recs, cognitiveLoadRecommendation(load))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		wi, wj := priorityWeight(recs[i].Priority), priorityWeight(recs[j].Priority)
		if wi != wj {
			return wi > wj
		}
		return recs[i].EstimatedImprovement > recs[j].EstimatedImprovement
	})
	return recs
}

func recommendationForIssue(issue mcpmodel.UsabilityIssue) mcpmodel.UsabilityRecommendation {
	var steps []string
	switch issue.Type {
	case mcpmodel.IssueAuthenticationFriction:
		steps = []string{
			"Add API key validation on setup",
			"Provide clear error messages for auth failures",
			"Create guided setup wizard",
			"Add test connectivity feature",
		}
	case mcpmodel.IssueParameterConfusion:
		steps = []string{
			"Add parameter validation with clear error messages",
			"Provide usage examples in documentation",
			"Implement auto-completion for parameters",
			"Add parameter format hints",
		}
	case mcpmodel.IssueErrorRecovery:
		steps = []string{
			"Improve error message clarity",
			"Add suggested recovery actions",
			"Implement progressive error disclosure",
			"Add contextual help for common errors",
		}
	}

	improvement := 15.0
	if issue.EstimatedImprovement != nil {
		improvement = *issue.EstimatedImprovement
	}

	return mcpmodel.UsabilityRecommendation{
		Priority:             issue.Severity,
		Category:             titleCase(strings.ReplaceAll(string(issue.Type), "_", " ")),
		Issue:                issue.Description,
		Impact:               issue.ImpactDescription,
		Effort:               "medium",
		Recommendation:       issue.SuggestedFix,
		EstimatedImprovement: improvement,
		ImplementationSteps:  steps,
	}
}

func cognitiveLoadRecommendation(load mcpmodel.CognitiveLoadMetrics) mcpmodel.UsabilityRecommendation {
	return mcpmodel.UsabilityRecommendation{
		Priority:             mcpmodel.SeverityHigh,
		Category:             "Cognitive Load",
		Issue:                fmt.Sprintf("Overall cognitive load is high (%.1f)", load.OverallScore),
		Impact:               "Users experience mental fatigue and reduced efficiency",
		Effort:               "high",
		Recommendation:       "Redesign interaction flow to reduce cognitive burden",
		EstimatedImprovement: 30.0,
		ImplementationSteps: []string{
			"Analyze high-friction interaction patterns",
			"Simplify parameter structures",
			"Reduce context switching requirements",
			"Implement progressive disclosure",
			"Add smart defaults for common use cases",
		},
	}
}

func priorityWeight(s mcpmodel.IssueSeverity) int {
	switch s {
	case mcpmodel.SeverityCritical:
		return 4
	case mcpmodel.SeverityHigh:
		return 3
	case mcpmodel.SeverityMedium:
		return 2
	case mcpmodel.SeverityLow:
		return 1
	default:
		return 1
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

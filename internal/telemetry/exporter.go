package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"mcpaudit/internal/correlator"
	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/report"
	"mcpaudit/internal/runtimeconfig"
	"mcpaudit/internal/scoring"
)

// Exporter periodically rebuilds the correlator/scorer pipeline from recent
// event-store data and publishes the result through a Backend. It exports
// on every tick regardless of whether new data arrived, so downstream time
// series never go missing, but also wakes early on a file-change
// notification so a burst of activity doesn't have to wait out a full
// interval.
type Exporter struct {
	stateDir   string
	serverName string
	cfg        runtimeconfig.Config
	backend    Backend
	correlator *correlator.Correlator
	scorer     *scoring.Scorer
	log        zerolog.Logger
}

// NewExporter returns an Exporter reading from stateDir's event streams and
// exporting reports scoped to serverName (use "" or "all" for every server).
func NewExporter(stateDir, serverName string, cfg runtimeconfig.Config, backend Backend, log zerolog.Logger) *Exporter {
	return &Exporter{
		stateDir:   stateDir,
		serverName: serverName,
		cfg:        cfg,
		backend:    backend,
		correlator: correlator.New(cfg.TimeWindowSeconds),
		scorer:     scoring.New(cfg),
		log:        log,
	}
}

// Run exports every ExportIntervalSeconds until ctx is cancelled, also
// watching the event-store directory so a write wakes the loop early. A
// failed iteration is logged and the loop continues.
func (e *Exporter) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.ExportIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Warn().Err(err).Msg("file watcher unavailable, exporting on interval only")
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(e.stateDir); err != nil {
			e.log.Warn().Err(err).Msg("failed to watch state directory")
		}
	}

	e.exportOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return e.backend.Shutdown(context.Background())
		case <-ticker.C:
			e.exportOnce(ctx)
		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				e.exportOnce(ctx)
			}
		}
	}
}

func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func (e *Exporter) exportOnce(ctx context.Context) {
	flows, recent, err := e.loadFlows()
	if err != nil {
		e.log.Error().Err(err).Msg("failed to rebuild flows for export")
		return
	}
	e.publish(ctx, flows, recent)
}

// loadFlows reads the lookback window from every stream, merges the
// timelines, and groups them into flows. It also returns the raw MCP
// message events so per-interaction counters can be emitted.
func (e *Exporter) loadFlows() ([]mcpmodel.Flow, []mcpmodel.MCPEvent, error) {
	since := time.Now().Add(-time.Duration(e.cfg.MetricsLookbackHours * float64(time.Hour)))

	timeline, rawMessages, err := correlator.LoadEvents(e.stateDir, since, e.log)
	if err != nil {
		return nil, nil, err
	}
	flows := e.correlator.GroupIntoFlows(timeline)
	if e.serverName != "" && e.serverName != "all" {
		flows = correlator.FilterByServer(flows, []string{e.serverName})
	}
	return flows, rawMessages, nil
}

// publish emits the full metric payload. Flow-level counters and rates are
// always emitted - as zeros when the window held nothing, except the
// abandonment rate, which then reads 100 - so a quiet hour
// doesn't punch holes in downstream time series; the trace and the
// report-derived metrics only make sense when flows exist.
func (e *Exporter) publish(ctx context.Context, flows []mcpmodel.Flow, recent []mcpmodel.MCPEvent) {
	serverName := e.serverName
	if serverName == "" {
		serverName = "all"
	}
	serverLabels := Labels{"server": serverName}

	totalFlows := len(flows)
	successfulFlows, crossServerFlows := 0, 0
	userContextFlows, reasoningFlows := 0, 0
	toolCalls, llmDecisions := 0, 0
	successfulToolCalls := 0
	var totalDurationMS int64
	for _, f := range flows {
		if f.Success {
			successfulFlows++
			successfulToolCalls += len(f.MCPCalls)
		}
		if f.CrossServerFlow {
			crossServerFlows++
		}
		if f.HasUserContext {
			userContextFlows++
		}
		if f.LLMReasoning != "" {
			reasoningFlows++
		}
		toolCalls += len(f.MCPCalls)
		llmDecisions += len(f.LLMDecisions)
		totalDurationMS += f.DurationMS
	}

	e.backend.RecordCounter(ctx, "mcp_total_flows", float64(totalFlows), serverLabels)
	e.backend.RecordCounter(ctx, "mcp_successful_flows", float64(successfulFlows), serverLabels)
	e.backend.RecordCounter(ctx, "mcp_cross_server_flows", float64(crossServerFlows), serverLabels)
	e.backend.RecordCounter(ctx, "mcp_tool_calls_total", float64(toolCalls), serverLabels)
	e.backend.RecordCounter(ctx, "mcp_llm_decisions_total", float64(llmDecisions), serverLabels)

	e.backend.RecordHistogram(ctx, "mcp_flow_success_rate", percent(successfulFlows, totalFlows), serverLabels)
	e.backend.RecordHistogram(ctx, "mcp_abandonment_rate", 100-percent(successfulFlows, totalFlows), serverLabels)
	e.backend.RecordHistogram(ctx, "mcp_user_context_rate", percent(userContextFlows, totalFlows), serverLabels)
	e.backend.RecordHistogram(ctx, "mcp_llm_reasoning_rate", percent(reasoningFlows, totalFlows), serverLabels)
	e.backend.RecordHistogram(ctx, "mcp_tool_usage_success_rate", percent(successfulToolCalls, toolCalls), serverLabels)
	if totalFlows > 0 {
		e.backend.RecordHistogram(ctx, "mcp_avg_flow_duration_ms", float64(totalDurationMS)/float64(totalFlows), serverLabels)
	}

	e.publishRecentInteractions(ctx, recent)

	if totalFlows == 0 {
		return
	}

	rpt := report.Assemble(serverName, e.cfg.MetricsLookbackHours, flows, e.scorer, time.Now())

	spanCtx, span := e.backend.StartSpan(ctx, "mcp_usability_analysis", Labels{
		"server":                serverName,
		"mcp.usability.grade":   rpt.Grade,
		"mcp.usability.score":   formatFloat(rpt.OverallUsabilityScore),
		"mcp.sessions.total":    strconv.Itoa(rpt.SessionSummary.TotalSessions),
		"mcp.analysis.window_h": formatFloat(rpt.AnalysisWindowHours),
	})

	_, cognitiveSpan := e.backend.StartSpan(spanCtx, "cognitive_analysis", Labels{
		"cognitive.prompt_complexity":      formatFloat(rpt.CognitiveLoad.PromptComplexity),
		"cognitive.context_switching":      formatFloat(rpt.CognitiveLoad.ContextSwitching),
		"cognitive.retry_frustration":      formatFloat(rpt.CognitiveLoad.RetryFrustration),
		"cognitive.configuration_friction": formatFloat(rpt.CognitiveLoad.ConfigurationFriction),
		"cognitive.integration_cognition":  formatFloat(rpt.CognitiveLoad.IntegrationCognition),
	})
	e.backend.EndSpan(cognitiveSpan, nil)

	for _, issue := range rpt.DetectedIssues {
		e.backend.AddSpanEvent(span, "usability_issue_detected", Labels{
			"issue.type":        string(issue.Type),
			"issue.severity":    string(issue.Severity),
			"issue.frequency":   strconv.Itoa(issue.Frequency),
			"issue.description": issue.Description,
		})
	}
	e.backend.EndSpan(span, nil)

	for component, score := range map[string]float64{
		"overall":                rpt.CognitiveLoad.OverallScore,
		"prompt_complexity":      rpt.CognitiveLoad.PromptComplexity,
		"context_switching":      rpt.CognitiveLoad.ContextSwitching,
		"retry_frustration":      rpt.CognitiveLoad.RetryFrustration,
		"configuration_friction": rpt.CognitiveLoad.ConfigurationFriction,
		"integration_cognition":  rpt.CognitiveLoad.IntegrationCognition,
	} {
		e.backend.RecordHistogram(ctx, "mcp_cognitive_load_score", score, Labels{"server": serverName, "component": component})
	}

	e.backend.RecordGauge(ctx, "mcp_usability_score", rpt.OverallUsabilityScore, serverLabels)
	e.backend.RecordCounter(ctx, "mcp_usability_grade_total", 1, Labels{"server": serverName, "grade": rpt.Grade})

	e.log.Debug().Str("grade", rpt.Grade).Float64("score", rpt.OverallUsabilityScore).Int("flows", totalFlows).Msg("exported usability report")
}

// publishRecentInteractions emits one interaction counter per recent
// message event, plus latency and error samples for the responses among
// them.
func (e *Exporter) publishRecentInteractions(ctx context.Context, recent []mcpmodel.MCPEvent) {
	sample := e.cfg.RecentInteractionSampleSize
	if len(recent) > sample {
		recent = recent[len(recent)-sample:]
	}
	for _, m := range recent {
		method := m.Method()
		if method == "" && m.EnhancedContext != nil && m.EnhancedContext.ToolMethod != "" {
			method = m.EnhancedContext.ToolMethod
		}
		if method == "" {
			method = "response"
		}
		e.backend.RecordCounter(ctx, "mcp_interactions_total", 1, Labels{
			"server":    m.ServerName,
			"direction": string(m.Direction),
			"method":    method,
		})
		if m.LatencyMS != nil {
			e.backend.RecordHistogram(ctx, "mcp_interaction_duration_ms", float64(*m.LatencyMS), Labels{
				"server": m.ServerName,
				"method": method,
			})
		}
		if m.ErrorCode != nil {
			e.backend.RecordCounter(ctx, "mcp_errors_total", 1, Labels{
				"error_code": *m.ErrorCode,
				"direction":  string(m.Direction),
			})
		}
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// Command mcpaudit-exporter runs the continuous telemetry export loop: it
// periodically rebuilds a usability report from the event store and sends
// it to an OpenTelemetry collector (or stdout, for local runs with no
// collector available).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mcpaudit/internal/obslog"
	"mcpaudit/internal/paths"
	"mcpaudit/internal/runtimeconfig"
	"mcpaudit/internal/telemetry"
)

func main() {
	serverName := flag.String("server", "all", "server name to scope the exported report to, or \"all\"")
	configPath := flag.String("config", "", "path to runtime config YAML (optional)")
	console := flag.Bool("console", false, "write spans to stdout instead of an OTLP collector")
	traceEndpoint := flag.String("otlp-trace-endpoint", "", "OTLP gRPC endpoint for spans (default localhost:4317)")
	metricEndpoint := flag.String("otlp-metric-endpoint", "", "OTLP HTTP endpoint for metrics (default localhost:4318)")
	flag.Parse()

	log := obslog.Get("exporter")

	cfg, err := runtimeconfig.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load runtime config, using defaults")
	}

	stateDir, err := paths.StateDir()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve state directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := telemetry.NewOtelBackend(ctx, telemetry.OtelConfig{
		ServiceName:        "mcp-audit-agent",
		Console:            *console,
		OTLPTraceEndpoint:  *traceEndpoint,
		OTLPMetricEndpoint: *metricEndpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize OpenTelemetry backend")
	}

	exporter := telemetry.NewExporter(stateDir, *serverName, cfg, backend, log)
	if err := exporter.Run(ctx); err != nil {
		log.Error().Err(err).Msg("exporter exited with error")
		os.Exit(1)
	}
}

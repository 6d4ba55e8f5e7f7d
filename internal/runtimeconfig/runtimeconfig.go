// Package runtimeconfig loads the tunables shared across components from an
// optional YAML file, falling back to fixed defaults. It is loaded once at
// startup and passed down explicitly; no component reaches into
// package-level globals for these values.
package runtimeconfig

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable shared across components.
type Config struct {
	// TimeWindowSeconds is the correlator's flow-boundary gap.
	TimeWindowSeconds int `koanf:"time_window_seconds"`
	// BaselineLatencyMS is the scorer's reference "smooth interaction"
	// latency.
	BaselineLatencyMS int64 `koanf:"baseline_latency_ms"`
	// ExportIntervalSeconds is how often the telemetry exporter re-derives
	// flows and publishes metrics.
	ExportIntervalSeconds int `koanf:"export_interval_seconds"`
	// MaxCapturedJSONBytes caps how large a single captured line's parsed
	// JSON may be before capture is dropped for that line.
	MaxCapturedJSONBytes int `koanf:"max_captured_json_bytes"`
	// MaxDecisionSessions bounds the in-memory LLM decision session table.
	MaxDecisionSessions int `koanf:"max_decision_sessions"`
	// MetricsLookbackHours is the since_hours window the exporter loop
	// re-derives flows over.
	MetricsLookbackHours float64 `koanf:"metrics_lookback_hours"`
	// ShutdownDrainSeconds bounds how long the proxy waits for in-flight
	// buffers to drain on shutdown.
	ShutdownDrainSeconds int `koanf:"shutdown_drain_seconds"`
	// RecentInteractionSampleSize is how many of the most recent message
	// events get an additional per-event interaction counter each export
	// tick.
	RecentInteractionSampleSize int `koanf:"recent_interaction_sample_size"`
}

// Defaults returns the baseline configuration used when no override file
// or environment variable is present.
func Defaults() Config {
	return Config{
		TimeWindowSeconds:           30,
		BaselineLatencyMS:           15000,
		ExportIntervalSeconds:       5,
		MaxCapturedJSONBytes:        1 << 20,
		MaxDecisionSessions:         64,
		MetricsLookbackHours:        1,
		ShutdownDrainSeconds:        5,
		RecentInteractionSampleSize: 10,
	}
}

// Load reads overrides from an optional YAML file at path (skipped if the
// file doesn't exist) layered over Defaults, then applies the
// MCPAUDIT_CONFIG_PATH environment variable as the default path when path
// is empty.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("MCPAUDIT_CONFIG_PATH")
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, err
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

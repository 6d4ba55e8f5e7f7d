package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpaudit/internal/eventstore"
	"mcpaudit/internal/mcpmodel"
	"mcpaudit/internal/runtimeconfig"
)

type metricSample struct {
	name   string
	value  float64
	labels Labels
}

// recordingBackend captures every backend call so tests can assert on the
// exact metric payload the exporter emits.
type recordingBackend struct {
	mu         sync.Mutex
	counters   []metricSample
	histograms []metricSample
	gauges     []metricSample
	spans      []string
	spanEvents []string
	shutdowns  int
}

func (b *recordingBackend) RecordCounter(_ context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = append(b.counters, metricSample{name, value, labels})
}

func (b *recordingBackend) RecordHistogram(_ context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.histograms = append(b.histograms, metricSample{name, value, labels})
}

func (b *recordingBackend) RecordGauge(_ context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gauges = append(b.gauges, metricSample{name, value, labels})
}

func (b *recordingBackend) StartSpan(ctx context.Context, name string, _ Labels) (context.Context, SpanHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spans = append(b.spans, name)
	return ctx, name
}

func (b *recordingBackend) AddSpanEvent(_ SpanHandle, name string, _ Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spanEvents = append(b.spanEvents, name)
}

func (b *recordingBackend) EndSpan(SpanHandle, error) {}

func (b *recordingBackend) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	return nil
}

func (b *recordingBackend) counter(name string) (metricSample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.counters {
		if s.name == name {
			return s, true
		}
	}
	return metricSample{}, false
}

func (b *recordingBackend) histogramCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.histograms {
		if s.name == name {
			n++
		}
	}
	return n
}

func seedStore(t *testing.T, dir string) {
	t.Helper()
	store := eventstore.New(dir)
	defer store.Close()

	base := time.Now().Add(-5 * time.Minute)
	lat := int64(120)
	events := []mcpmodel.MCPEvent{
		{
			Timestamp:  base,
			Direction:  mcpmodel.DirectionLLMToMCPClient,
			ServerName: "mastra",
			Protocol:   mcpmodel.ProtocolJSONRPC,
			Payload:    []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_weather","arguments":{"city":"London"}}}`),
		},
		{
			Timestamp:  base.Add(120 * time.Millisecond),
			Direction:  mcpmodel.DirectionMCPClientToServer,
			ServerName: "mastra",
			Protocol:   mcpmodel.ProtocolJSONRPC,
			Payload:    []byte(`{"jsonrpc":"2.0","id":1,"result":{"temp":15}}`),
			LatencyMS:  &lat,
		},
	}
	for _, ev := range events {
		require.NoError(t, store.Append("mcp_audit_messages", ev))
	}
}

func TestExportOnce_PublishesFlowMetricsAndReport(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir)

	backend := &recordingBackend{}
	exp := NewExporter(dir, "all", runtimeconfig.Defaults(), backend, zerolog.Nop())

	exp.exportOnce(context.Background())

	total, ok := backend.counter("mcp_total_flows")
	require.True(t, ok)
	assert.Equal(t, 1.0, total.value)

	successful, ok := backend.counter("mcp_successful_flows")
	require.True(t, ok)
	assert.Equal(t, 1.0, successful.value)

	grade, ok := backend.counter("mcp_usability_grade_total")
	require.True(t, ok)
	assert.Equal(t, "A", grade.labels["grade"], "a single clean tool call should grade A")

	interactions, ok := backend.counter("mcp_interactions_total")
	require.True(t, ok)
	assert.Equal(t, "mastra", interactions.labels["server"])

	assert.Equal(t, 6, backend.histogramCount("mcp_cognitive_load_score"),
		"five sub-scores plus overall")
	assert.Equal(t, 1, backend.histogramCount("mcp_interaction_duration_ms"))
	assert.Contains(t, backend.spans, "mcp_usability_analysis")
	assert.Contains(t, backend.spans, "cognitive_analysis")
}

func TestExportOnce_EmitsBaselineMetricsWithNoFlows(t *testing.T) {
	dir := t.TempDir()

	backend := &recordingBackend{}
	exp := NewExporter(dir, "all", runtimeconfig.Defaults(), backend, zerolog.Nop())

	exp.exportOnce(context.Background())

	total, ok := backend.counter("mcp_total_flows")
	require.True(t, ok, "flow counters must be emitted even for an empty window")
	assert.Equal(t, 0.0, total.value)

	_, gradeEmitted := backend.counter("mcp_usability_grade_total")
	assert.False(t, gradeEmitted, "no report means no grade sample")
	assert.Empty(t, backend.spans)
}

func TestRun_ShutsDownBackendOnCancel(t *testing.T) {
	dir := t.TempDir()
	backend := &recordingBackend{}
	cfg := runtimeconfig.Defaults()
	cfg.ExportIntervalSeconds = 1
	exp := NewExporter(dir, "all", cfg, backend, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exp.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancellation")
	}
	assert.Equal(t, 1, backend.shutdowns)
}

package componentregistry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/output/counter"
	"github.com/c360/micropipe/output/file"
	"github.com/c360/micropipe/pipeline"
)

func newRegistry(t *testing.T) *component.Registry {
	t.Helper()
	registry := component.NewRegistry()
	require.NoError(t, Register(registry, component.Dependencies{MetricsRegistry: metric.NewMetricsRegistry()}))
	return registry
}

func TestRegister_AllBuiltins(t *testing.T) {
	registry := newRegistry(t)

	names := map[string]string{}
	for _, reg := range registry.ListRegistrations() {
		names[reg.Name] = string(reg.Type)
	}
	assert.Equal(t, map[string]string{
		"generator":    "SOURCE",
		"nats-source":  "SOURCE",
		"udp":          "SOURCE",
		"json-filter":  "DIRECT_RESPONSE_OPERATOR",
		"batcher":      "DELAYED_RESPONSE_OPERATOR",
		"counter":      "EMITTER",
		"file":         "EMITTER",
		"nats-emitter": "EMITTER",
		"http-post":    "EMITTER",
		"websocket":    "EMITTER",
	}, names)
}

func TestRegister_NilRegistry(t *testing.T) {
	assert.Error(t, Register(nil, component.Dependencies{}))
}

func TestRegister_Twice(t *testing.T) {
	registry := newRegistry(t)
	assert.Error(t, Register(registry, component.Dependencies{}))
}

func TestPipeline_GeneratorToCounter(t *testing.T) {
	const n = 10000
	m := pipeline.NewManager(newRegistry(t))
	t.Cleanup(func() { _ = m.ShutdownAll() })

	cfg := &config.PipelineConfiguration{
		PipelineID: "count",
		Queues:     []config.QueueConfiguration{{ID: "q"}},
		Components: []config.ComponentConfiguration{
			{ID: "gen", Type: "SOURCE", Name: "generator", Version: "1.0.0",
				Settings: config.Settings{"count": "10000"}, ToQueues: []string{"q"}},
			{ID: "sink", Type: "EMITTER", Name: "counter", Version: "1.0.0",
				Settings: config.Settings{"expected": "10000", "distinct": "true"}, FromQueues: []string{"q"}},
		},
	}
	_, err := m.Instantiate(context.Background(), cfg)
	require.NoError(t, err)

	p, ok := m.Pipeline("count")
	require.True(t, ok)
	comp, ok := p.Component("sink")
	require.True(t, ok)
	sink := comp.(*counter.Counter)

	select {
	case <-sink.Latch(n):
	case <-time.After(10 * time.Second):
		t.Fatalf("received %d of %d messages", sink.TotalNumOfMessages(), n)
	}
	assert.Equal(t, n, sink.Distinct())
	assert.Zero(t, sink.Duplicates())

	require.NoError(t, m.Shutdown("count"))
}

func TestPipeline_FilterToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	m := pipeline.NewManager(newRegistry(t))
	t.Cleanup(func() { _ = m.ShutdownAll() })

	cfg := &config.PipelineConfiguration{
		PipelineID: "filter",
		Queues:     []config.QueueConfiguration{{ID: "raw"}, {ID: "kept"}},
		Components: []config.ComponentConfiguration{
			{ID: "gen", Type: "SOURCE", Name: "generator", Version: "1.0.0",
				Settings: config.Settings{"count": "20", "prefix": `{"seq":`, "suffix": "}"}, ToQueues: []string{"raw"}},
			{ID: "filter", Type: "DIRECT_RESPONSE_OPERATOR", Name: "json-filter", Version: "1.0.0",
				Settings: config.Settings{"field": "seq", "pattern": "1[0-4]"}, FromQueues: []string{"raw"}, ToQueues: []string{"kept"}},
			{ID: "out", Type: "EMITTER", Name: "file", Version: "1.0.0",
				Settings: config.Settings{"path": path}, FromQueues: []string{"kept"}},
		},
	}
	_, err := m.Instantiate(context.Background(), cfg)
	require.NoError(t, err)

	p, _ := m.Pipeline("filter")
	comp, _ := p.Component("out")
	out := comp.(*file.Output)
	require.Eventually(t, func() bool {
		written, _ := out.Written()
		return written == 5
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Shutdown("filter"))
}

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/pkg/worker"
	"github.com/c360/micropipe/stats"
)

func linearConfig(id string, count int) *config.PipelineConfiguration {
	return &config.PipelineConfiguration{
		PipelineID: id,
		Queues:     queues("raw", "upper"),
		Components: []config.ComponentConfiguration{
			{ID: "src", Type: "SOURCE", Name: "seq", Version: "1.0.0",
				Settings: config.Settings{"count": fmt.Sprint(count)}, ToQueues: []string{"raw"}},
			{ID: "op", Type: "OPERATOR", Name: "upper", Version: "1.0.0",
				FromQueues: []string{"raw"}, ToQueues: []string{"upper"}},
			{ID: "sink", Type: "EMITTER", Name: "count", Version: "1.0.0",
				Settings: config.Settings{"target": fmt.Sprint(count)}, FromQueues: []string{"upper"}},
		},
	}
}

func sinkOf(t *testing.T, p *Pipeline) *countingEmitter {
	t.Helper()
	c, ok := p.Component("sink")
	require.True(t, ok)
	return c.(*countingEmitter)
}

func TestManager_TenThousandMessages(t *testing.T) {
	tr := &tracker{}
	registry := metric.NewMetricsRegistry()
	m := NewManager(newTestRegistry(t, tr), WithMetrics(registry), WithNodeID("node-1"))

	const n = 10000
	id, err := m.Instantiate(context.Background(), linearConfig("p1", n))
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	assert.Equal(t, []string{"p1"}, m.Pipelines())

	p, ok := m.Pipeline("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"sink", "op", "src"}, p.StartOrder())

	sink := sinkOf(t, p)
	select {
	case <-sink.done:
	case <-time.After(10 * time.Second):
		t.Fatalf("received %d of %d messages", sink.TotalNumOfMessages(), n)
	}

	bodies := sink.received()
	require.Len(t, bodies, n)
	for i, b := range bodies {
		require.Equal(t, fmt.Sprintf("M%d", i), string(b))
	}

	require.Eventually(t, func() bool { return m.Healthy() }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Shutdown("p1"))
	assert.Empty(t, m.Pipelines())
	assert.ElementsMatch(t, []string{"src", "op", "sink"}, tr.ids())

	q, _ := p.Queue("raw")
	assert.True(t, q.IsShutdown())
	for _, cid := range []string{"src", "op", "sink"} {
		env, _ := p.Environment(cid)
		assert.False(t, env.IsRunning(), cid)
	}
}

func TestManager_SourceOnWorkerPool(t *testing.T) {
	pool := worker.NewTaskPool(4)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(time.Second)

	m := NewManager(newTestRegistry(t, &tracker{}), WithExecutor(pool))
	_, err := m.Instantiate(context.Background(), linearConfig("pooled", 100))
	require.NoError(t, err)

	p, _ := m.Pipeline("pooled")
	select {
	case <-sinkOf(t, p).done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages did not arrive")
	}
	require.NoError(t, m.ShutdownAll())
	assert.Empty(t, m.Pipelines())
}

func holdConfig(id string) *config.PipelineConfiguration {
	return &config.PipelineConfiguration{
		PipelineID: id,
		Queues:     queues("out"),
		Components: []config.ComponentConfiguration{
			{ID: "src", Type: "SOURCE", Name: "hold", Version: "1.0.0", ToQueues: []string{"out"}},
			{ID: "sink", Type: "EMITTER", Name: "count", Version: "1.0.0", FromQueues: []string{"out"}},
		},
	}
}

func TestManager_MoreSourcesThanWorkers(t *testing.T) {
	pool := worker.NewTaskPool(1)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(time.Second)

	tr := &tracker{}
	m := NewManager(newTestRegistry(t, tr), WithExecutor(pool))
	ctx := context.Background()

	_, err := m.Instantiate(ctx, holdConfig("busy"))
	require.NoError(t, err)

	_, err = m.Instantiate(ctx, linearConfig("starved", 5))
	require.Error(t, err)
	assert.Equal(t, StatusComponentInitializationFailed, StatusOf(err))
	_, ok := m.Pipeline("starved")
	assert.False(t, ok, "a pipeline whose source got no worker is rolled back")
	assert.ElementsMatch(t, []string{"src", "op", "sink"}, tr.ids())
	assert.Equal(t, []string{"busy"}, m.Pipelines())

	require.NoError(t, m.Shutdown("busy"))

	// the worker frees up once the held source returns
	require.Eventually(t, func() bool {
		_, err := m.Instantiate(ctx, linearConfig("starved", 5))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := m.Pipeline("starved")
	select {
	case <-sinkOf(t, p).done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages did not arrive")
	}
	require.NoError(t, m.ShutdownAll())
}

func TestManager_ShutdownReleasesBlockedSource(t *testing.T) {
	m := NewManager(newTestRegistry(t, &tracker{}), WithShutdownTimeout(5*time.Second))
	cfg := &config.PipelineConfiguration{
		PipelineID: "blocked",
		Queues: []config.QueueConfiguration{
			{ID: "raw", Settings: config.Settings{"capacity": "1", "overflowPolicy": "block"}},
		},
		Components: []config.ComponentConfiguration{
			{ID: "src", Type: "SOURCE", Name: "seq", Version: "1.0.0",
				Settings: config.Settings{"count": "100"}, ToQueues: []string{"raw"}},
		},
	}
	_, err := m.Instantiate(context.Background(), cfg)
	require.NoError(t, err)

	p, _ := m.Pipeline("blocked")
	q, _ := p.Queue("raw")
	require.Eventually(t, func() bool { return q.Size() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Shutdown("blocked"))
	assert.Less(t, time.Since(start), time.Second)

	env, _ := p.Environment("src")
	assert.False(t, env.IsRunning())
}

func TestManager_InstantiateIsDetachedFromContext(t *testing.T) {
	m := NewManager(newTestRegistry(t, &tracker{}))
	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Instantiate(ctx, linearConfig("detached", 5))
	require.NoError(t, err)
	cancel()

	p, _ := m.Pipeline("detached")
	env, _ := p.Environment("sink")
	time.Sleep(10 * time.Millisecond)
	assert.True(t, env.IsRunning())
	require.NoError(t, m.Shutdown("detached"))
}

func TestManager_Statuses(t *testing.T) {
	m := NewManager(newTestRegistry(t, &tracker{}))
	ctx := context.Background()

	_, err := m.Instantiate(ctx, nil)
	assert.Equal(t, StatusConfigurationMissing, StatusOf(err))

	_, err = m.Instantiate(ctx, linearConfig("dup", 1))
	require.NoError(t, err)
	_, err = m.Instantiate(ctx, linearConfig("dup", 1))
	assert.Equal(t, StatusNonUniquePipelineID, StatusOf(err))
	assert.ErrorIs(t, err, errors.ErrPipelineInstantiationFailed)

	badQueue := linearConfig("bad-queue", 1)
	badQueue.Queues[1].Settings = config.Settings{"waitStrategy": "telepathy"}
	_, err = m.Instantiate(ctx, badQueue)
	assert.Equal(t, StatusQueueInitializationFailed, StatusOf(err))

	unknown := linearConfig("unknown", 1)
	unknown.Components[1].Version = "9.9.9"
	_, err = m.Instantiate(ctx, unknown)
	assert.Equal(t, StatusComponentInitializationFailed, StatusOf(err))
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)

	wrongType := linearConfig("wrong-type", 1)
	wrongType.Components[1].Type = "EMITTER"
	wrongType.Components[1].ToQueues = nil
	wrongType.Components[2].FromQueues = []string{"raw"}
	_, err = m.Instantiate(ctx, wrongType)
	assert.Equal(t, StatusComponentInitializationFailed, StatusOf(err))

	dupComponent := linearConfig("dup-component", 1)
	dupComponent.Components[2].ID = "op"
	_, err = m.Instantiate(ctx, dupComponent)
	assert.Equal(t, StatusPipelineInitializationFailed, StatusOf(err))
	assert.ErrorIs(t, err, errors.ErrNonUniqueIdentifier)

	assert.Equal(t, []string{"dup"}, m.Pipelines())

	var failed []string
	for _, s := range m.Health() {
		if s.IsUnhealthy() {
			failed = append(failed, s.Component)
		}
	}
	assert.Equal(t, []string{"bad-queue", "dup-component", "unknown", "wrong-type"}, failed)
	assert.False(t, m.Healthy())

	require.NoError(t, m.ShutdownAll())
}

func TestManager_RollbackOnFailure(t *testing.T) {
	tr := &tracker{}
	m := NewManager(newTestRegistry(t, tr))

	cfg := linearConfig("rollback", 1)
	cfg.Components[1].Settings = config.Settings{"fail": "true"}
	_, err := m.Instantiate(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentInitializationFailed)
	assert.Equal(t, StatusComponentInitializationFailed, StatusOf(err))

	assert.Equal(t, []string{"src"}, tr.ids(), "components created before the failure are shut down")
	assert.Empty(t, m.Pipelines())

	// the id is free again once the configuration is fixed
	cfg.Components[1].Settings = nil
	_, err = m.Instantiate(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown("rollback"))

	for _, s := range m.Health() {
		assert.NotEqual(t, "rollback", s.Component)
	}
}

func TestManager_RollbackOnBadFlushStrategy(t *testing.T) {
	tr := &tracker{}
	m := NewManager(newTestRegistry(t, tr))

	cfg := linearConfig("strategy", 1)
	cfg.Components[1].Type = "DELAYED_RESPONSE_OPERATOR"
	cfg.Components[1].Name = "join"
	cfg.Components[1].Settings = config.Settings{"flushStrategy": "whenever"}

	_, err := m.Instantiate(context.Background(), cfg)
	assert.Equal(t, StatusComponentInitializationFailed, StatusOf(err))
	assert.ErrorIs(t, err, errors.ErrUnknownWaitStrategy)
	assert.ElementsMatch(t, []string{"src", "op", "sink"}, tr.ids())
}

func TestManager_ShutdownUnknown(t *testing.T) {
	m := NewManager(newTestRegistry(t, &tracker{}))
	err := m.Shutdown("ghost")
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestManager_StatsQueue(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager(newTestRegistry(t, &tracker{}),
		WithClock(mock), WithStatsInterval(time.Second), WithNodeID("node-7"))

	cfg := linearConfig("observed", 20)
	cfg.Queues = append(cfg.Queues, queues("stats")...)
	cfg.StatsQueueID = "stats"
	cfg.Components = append(cfg.Components, config.ComponentConfiguration{
		ID: "stats-sink", Type: "EMITTER", Name: "count", Version: "1.0.0", FromQueues: []string{"stats"},
	})

	_, err := m.Instantiate(context.Background(), cfg)
	require.NoError(t, err)
	defer m.ShutdownAll()

	p, _ := m.Pipeline("observed")
	select {
	case <-sinkOf(t, p).done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages did not arrive")
	}

	require.Eventually(t, func() bool {
		for _, id := range []string{"src", "op", "sink"} {
			env, _ := p.Environment(id)
			if n, _ := env.Statistics().Totals(); n != 20 {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)

	mock.Add(time.Second)

	c, _ := p.Component("stats-sink")
	statsSink := c.(*countingEmitter)
	require.Eventually(t, func() bool { return statsSink.TotalNumOfMessages() >= 3 }, 2*time.Second, 5*time.Millisecond)

	byComponent := map[string]stats.ComponentStatistics{}
	for _, body := range statsSink.received() {
		s, err := stats.Decode(body)
		require.NoError(t, err)
		assert.Equal(t, "node-7", s.NodeID)
		assert.Equal(t, "observed", s.PipelineID)
		byComponent[s.ComponentID] = s
	}
	for _, id := range []string{"src", "op", "sink"} {
		assert.Equal(t, int32(20), byComponent[id].NumMessages, id)
	}
}

func windowSeries(t *testing.T, registry *metric.MetricsRegistry, pipelineID string) int {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	n := 0
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "micropipe_window_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pipeline" && l.GetValue() == pipelineID {
					n++
				}
			}
		}
	}
	return n
}

func TestManager_ShutdownForgetsWindowSeries(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	sink, err := stats.NewPrometheusSink(registry)
	require.NoError(t, err)

	mock := clock.NewMock()
	m := NewManager(newTestRegistry(t, &tracker{}),
		WithClock(mock), WithStatsInterval(time.Second), WithStatsSinks(sink))

	_, err = m.Instantiate(context.Background(), linearConfig("gone", 5))
	require.NoError(t, err)
	p, _ := m.Pipeline("gone")
	select {
	case <-sinkOf(t, p).done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages did not arrive")
	}

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return windowSeries(t, registry, "gone") > 0 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Shutdown("gone"))
	assert.Zero(t, windowSeries(t, registry, "gone"))
}

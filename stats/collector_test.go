package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/queue"
)

func TestCollector_SnapshotResetsWindow(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_000_000))
	c := NewCollector("n", "p", "c", mock)

	c.Record(10*time.Microsecond, 100)
	c.Record(30*time.Microsecond, 300)
	c.Record(20*time.Microsecond, 200)
	c.RecordError()
	mock.Add(5 * time.Second)

	s := c.Snapshot()
	assert.Equal(t, int32(3), s.NumMessages)
	assert.Equal(t, int32(1), s.Errors)
	assert.Equal(t, int32(10), s.MinDuration)
	assert.Equal(t, int32(30), s.MaxDuration)
	assert.Equal(t, int32(20), s.AvgDuration)
	assert.Equal(t, int32(100), s.MinSize)
	assert.Equal(t, int32(300), s.MaxSize)
	assert.Equal(t, int32(200), s.AvgSize)
	assert.Equal(t, int64(1_000_000), s.StartTime)
	assert.Equal(t, int64(1_005_000), s.EndTime)
	assert.Equal(t, int64(0), s.Window)

	mock.Add(time.Second)
	next := c.Snapshot()
	assert.Equal(t, int32(0), next.NumMessages)
	assert.Equal(t, int32(0), next.Errors)
	assert.Equal(t, int32(0), next.MinDuration)
	assert.Equal(t, s.EndTime, next.StartTime, "windows must be contiguous")
	assert.Equal(t, int64(1), next.Window)

	msgs, errs := c.Totals()
	assert.Equal(t, int64(3), msgs)
	assert.Equal(t, int64(1), errs)
}

func TestCollector_GetStatisticsEncodes(t *testing.T) {
	c := NewCollector("node", "pipe", "comp", nil)
	c.Record(time.Millisecond, 42)

	decoded, err := Decode(c.GetStatistics())
	require.NoError(t, err)
	assert.Equal(t, "comp", decoded.ComponentID)
	assert.Equal(t, int32(1), decoded.NumMessages)
	assert.Equal(t, int32(1000), decoded.AvgDuration)
}

func TestCollector_ConcurrentRecordAndSnapshot(t *testing.T) {
	c := NewCollector("n", "p", "c", nil)
	const writers, perWriter = 4, 1000

	var total int64
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				s := c.Snapshot()
				mu.Lock()
				total += int64(s.NumMessages)
				mu.Unlock()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.Record(time.Microsecond, 1)
			}
		}()
	}
	wg.Wait()
	close(done)

	mu.Lock()
	total += int64(c.Snapshot().NumMessages)
	mu.Unlock()
	assert.Equal(t, int64(writers*perWriter), total, "no message may be lost or counted twice across windows")
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]ComponentStatistics
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Report(_ context.Context, snaps []ComponentStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, snaps)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestReporter_TicksIntoSinks(t *testing.T) {
	mock := clock.NewMock()
	r := NewReporter(time.Second, WithReporterClock(mock))

	busy := NewCollector("n", "p", "busy", mock)
	idle := NewCollector("n", "p", "idle", mock)
	r.AddCollector(busy)
	r.AddCollector(idle)

	sink := &recordingSink{}
	r.AddSink(sink)

	r.Start(context.Background())
	defer r.Stop()

	busy.Record(time.Millisecond, 10)
	mock.Add(time.Second)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	batch := sink.batches[0]
	sink.mu.Unlock()
	require.Len(t, batch, 1, "empty windows are skipped")
	assert.Equal(t, "busy", batch[0].ComponentID)

	r.Stop()
	r.Stop()
}

func TestQueueSink(t *testing.T) {
	q, err := queue.New("stats", nil)
	require.NoError(t, err)

	sink := NewQueueSink(q.Producer())
	snap := sampleStatistics()
	require.NoError(t, sink.Report(context.Background(), []ComponentStatistics{snap}))

	msg, ok := q.Consumer().Next()
	require.True(t, ok)
	decoded, err := Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
	assert.Equal(t, snap.EndTime, msg.Timestamp)

	require.NoError(t, q.Shutdown())
	assert.Error(t, sink.Report(context.Background(), []ComponentStatistics{snap}))
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "")

	snap := sampleStatistics()
	snap.ComponentID = "json.filter"
	require.NoError(t, sink.Report(context.Background(), []ComponentStatistics{snap}))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "micropipe.stats.node-1.pipeline-a.json_filter", pub.subjects[0])
	decoded, err := Decode(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestPrometheusSink(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	sink, err := NewPrometheusSink(registry)
	require.NoError(t, err)

	snap := sampleStatistics()
	require.NoError(t, sink.Report(context.Background(), []ComponentStatistics{snap}))

	assert.Equal(t, 1200.0, testutil.ToFloat64(sink.messages.WithLabelValues("pipeline-a", "filter")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.errors.WithLabelValues("pipeline-a", "filter")))

	_, err = NewPrometheusSink(registry)
	assert.Error(t, err, "second registration on the same registry conflicts")
}

func TestPrometheusSink_Forget(t *testing.T) {
	sink, err := NewPrometheusSink(metric.NewMetricsRegistry())
	require.NoError(t, err)

	kept := sampleStatistics()
	kept.PipelineID = "pipeline-b"
	require.NoError(t, sink.Report(context.Background(), []ComponentStatistics{sampleStatistics(), kept}))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.messages))

	sink.Forget("pipeline-a")
	assert.Equal(t, 1, testutil.CollectAndCount(sink.messages))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.size))
	assert.Equal(t, 1200.0, testutil.ToFloat64(sink.messages.WithLabelValues("pipeline-b", "filter")))
}

package environment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/pkg/worker"
	"github.com/c360/micropipe/queue"
)

func TestSourceToEmitter_DeliversInOrder(t *testing.T) {
	q := newQueue(t, "q")
	const n = 2000

	src := newNumberSource("src", n)
	sink := newCountingEmitter("sink")

	srcEnv := NewSourceRuntimeEnvironment(src, []queue.Producer{q.Producer()}, nil, WithPipelineID("p"))
	sinkEnv := NewEmitterRuntimeEnvironment(sink, []queue.Consumer{q.Consumer()}, WithPipelineID("p"))

	ctx := context.Background()
	require.NoError(t, sinkEnv.Start(ctx))
	require.NoError(t, srcEnv.Start(ctx))

	require.Eventually(t, func() bool { return sink.TotalNumOfMessages() == n }, 5*time.Second, time.Millisecond)

	bodies := sink.bodies()
	for i, b := range bodies {
		require.Equal(t, fmt.Sprintf("%d", i), b)
	}

	require.NoError(t, srcEnv.Shutdown())
	require.NoError(t, sinkEnv.Shutdown())
	assert.Equal(t, int32(1), src.shutdown.Load())

	assert.Equal(t, int32(n), srcEnv.Statistics().Snapshot().NumMessages)
	assert.Equal(t, int32(n), sinkEnv.Statistics().Snapshot().NumMessages)
}

func TestEmitterEnvironment_IsolatesFailures(t *testing.T) {
	q := newQueue(t, "q")
	sink := newCountingEmitter("sink")
	sink.failOn = "bad"
	sink.panicOn = "worse"

	registry := metric.NewMetricsRegistry()
	env := NewEmitterRuntimeEnvironment(sink, []queue.Consumer{q.Consumer()},
		WithMetrics(registry.CoreMetrics()), WithPipelineID("p"))
	require.NoError(t, env.Start(context.Background()))
	defer env.Shutdown()

	for _, body := range []string{"a", "bad", "b", "worse", "c"} {
		require.True(t, q.Producer().Insert(message.FromString(body, 0)))
		q.Producer().WaitStrategy().ForceLockRelease()
	}

	require.Eventually(t, func() bool { return sink.TotalNumOfMessages() == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.bodies())

	require.Eventually(t, func() bool {
		_, errs := env.Statistics().Totals()
		return errs == 2
	}, time.Second, time.Millisecond)
	assert.True(t, env.IsRunning())
}

func TestShutdown_Idempotent(t *testing.T) {
	in := newQueue(t, "in")
	out := newQueue(t, "out")

	envs := []RuntimeEnvironment{
		NewEmitterRuntimeEnvironment(newCountingEmitter("e"), []queue.Consumer{in.Consumer()}),
		NewDirectResponseOperatorRuntimeEnvironment(&upperOperator{}, []queue.Consumer{in.Consumer()},
			[]queue.Producer{out.Producer()}),
		NewDelayedResponseOperatorRuntimeEnvironment(&joinOperator{}, NewMessageCountStrategy(3),
			[]queue.Consumer{in.Consumer()}, []queue.Producer{out.Producer()}),
		NewSourceRuntimeEnvironment(newNumberSource("s", 0), []queue.Producer{in.Producer()}, nil),
	}

	for _, env := range envs {
		require.NoError(t, env.Start(context.Background()))
		assert.True(t, env.IsRunning())
		assert.Error(t, env.Start(context.Background()), "second start must fail")
	}

	for _, env := range envs {
		start := time.Now()
		require.NoError(t, env.Shutdown())
		assert.Less(t, time.Since(start), time.Second, "shutdown must wake the blocked loop")
		require.NoError(t, env.Shutdown())
		assert.False(t, env.IsRunning())
	}
}

func TestShutdown_BeforeStart(t *testing.T) {
	q := newQueue(t, "q")
	env := NewEmitterRuntimeEnvironment(newCountingEmitter("e"), []queue.Consumer{q.Consumer()})
	assert.NoError(t, env.Shutdown())
	assert.False(t, env.IsRunning())
}

func TestDirectOperator_ForwardsToAllOutputs(t *testing.T) {
	in := newQueue(t, "in")
	out1 := newQueue(t, "out1")
	out2 := newQueue(t, "out2")

	env := NewDirectResponseOperatorRuntimeEnvironment(&upperOperator{},
		[]queue.Consumer{in.Consumer()},
		[]queue.Producer{out1.Producer(), out2.Producer()})
	require.NoError(t, env.Start(context.Background()))
	defer env.Shutdown()

	for _, body := range []string{"one", "drop", "two"} {
		in.Producer().Insert(message.FromString(body, 0))
		in.Producer().WaitStrategy().ForceLockRelease()
	}

	require.Eventually(t, func() bool { return out1.Size() == 2 && out2.Size() == 2 }, time.Second, time.Millisecond)
	for _, q := range []queue.Queue{out1, out2} {
		c := q.Consumer()
		m, _ := c.Next()
		assert.Equal(t, "ONE", string(m.Body))
		m, _ = c.Next()
		assert.Equal(t, "TWO", string(m.Body))
	}
}

func TestMultipleInputQueues(t *testing.T) {
	a := newQueue(t, "a")
	b := newQueue(t, "b")
	sink := newCountingEmitter("sink")

	env := NewEmitterRuntimeEnvironment(sink, []queue.Consumer{a.Consumer(), b.Consumer()})
	require.NoError(t, env.Start(context.Background()))
	defer env.Shutdown()

	for i := 0; i < 100; i++ {
		for _, q := range []queue.Queue{a, b} {
			q.Producer().Insert(message.FromString(q.ID(), 0))
			q.Producer().WaitStrategy().ForceLockRelease()
		}
	}
	require.Eventually(t, func() bool { return sink.TotalNumOfMessages() == 200 }, 2*time.Second, time.Millisecond)
}

func TestDelayedOperator_FlushesOnCountAndShutdown(t *testing.T) {
	in := newQueue(t, "in")
	out := newQueue(t, "out")
	op := &joinOperator{}
	strategy := NewMessageCountStrategy(3)

	env := NewDelayedResponseOperatorRuntimeEnvironment(op, strategy,
		[]queue.Consumer{in.Consumer()}, []queue.Producer{out.Producer()})
	assert.Same(t, strategy, op.strategy)
	require.NoError(t, env.Start(context.Background()))

	for _, body := range []string{"a", "b", "c", "d"} {
		in.Producer().Insert(message.FromString(body, 0))
		in.Producer().WaitStrategy().ForceLockRelease()
	}

	require.Eventually(t, func() bool { return out.Size() == 1 }, time.Second, time.Millisecond)
	m, _ := out.Consumer().Next()
	assert.Equal(t, "a,b,c", string(m.Body))

	require.Eventually(t, func() bool { return op.NumberOfMessagesSinceLastResult() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, env.Shutdown())

	m, ok := out.Consumer().Next()
	require.True(t, ok, "shutdown must flush buffered messages")
	assert.Equal(t, "d", string(m.Body))
}

type executorFunc func(worker.Task) error

func (f executorFunc) Submit(t worker.Task) error { return f(t) }

func TestSourceEnvironment_ExternalExecutor(t *testing.T) {
	pool := worker.NewTaskPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))

	q := newQueue(t, "q")
	src := newNumberSource("src", 10)
	env := NewSourceRuntimeEnvironment(src, []queue.Producer{q.Producer()}, []SourceOption{WithExecutor(pool)})
	require.NoError(t, env.Start(ctx))

	require.Eventually(t, func() bool { return q.Size() == 10 }, time.Second, time.Millisecond)
	require.NoError(t, env.Shutdown())
	assert.False(t, env.IsRunning())

	select {
	case <-env.Done():
	case <-time.After(time.Second):
		t.Fatal("source task did not finish")
	}

	// pool stays usable: the environment does not own it
	done := make(chan struct{})
	require.NoError(t, pool.Submit(func(context.Context) error { close(done); return nil }))
	<-done
	require.NoError(t, pool.Stop(time.Second))
}

func TestSourceEnvironment_ExecutorRejects(t *testing.T) {
	q := newQueue(t, "q")
	env := NewSourceRuntimeEnvironment(newNumberSource("s", 1), []queue.Producer{q.Producer()},
		[]SourceOption{WithExecutor(executorFunc(func(worker.Task) error { return worker.ErrQueueFull }))})

	err := env.Start(context.Background())
	assert.ErrorIs(t, err, worker.ErrQueueFull)
	assert.False(t, env.IsRunning())
	assert.NoError(t, env.Shutdown())
}

func TestSourceEnvironment_InsertAfterQueueShutdownCountsError(t *testing.T) {
	q := newQueue(t, "q")
	env := NewSourceRuntimeEnvironment(newNumberSource("s", 0), []queue.Producer{q.Producer()}, nil)
	require.NoError(t, q.Shutdown())

	env.OnMessage(message.FromString("late", 1))
	snap := env.Statistics().Snapshot()
	assert.Equal(t, int32(0), snap.NumMessages)
	assert.Equal(t, int32(1), snap.Errors)
}

func TestSourceEnvironment_ShutdownReleasesBlockedInsert(t *testing.T) {
	q, err := queue.New("full", map[string]string{
		queue.SettingCapacity:       "1",
		queue.SettingOverflowPolicy: "block",
	})
	require.NoError(t, err)

	env := NewSourceRuntimeEnvironment(newNumberSource("src", 10), []queue.Producer{q.Producer()}, nil,
		WithShutdownTimeout(5*time.Second))
	require.NoError(t, env.Start(context.Background()))
	require.Eventually(t, func() bool { return q.Size() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, env.Shutdown())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, q.IsShutdown())

	msg, ok := q.Consumer().Next()
	require.True(t, ok, "buffered messages stay readable")
	assert.Equal(t, "0", string(msg.Body))
}

var _ component.IncomingMessageCallback = (*SourceRuntimeEnvironment)(nil)

func TestNewBase_AppliesOptions(t *testing.T) {
	b := newBase(newNumberSource("src", 0), []Option{
		WithPipelineID("p"),
		WithShutdownTimeout(time.Second),
		WithPollInterval(5 * time.Millisecond),
	})
	assert.Equal(t, "src", b.ID())
	assert.Equal(t, "p", b.pipelineID)
	assert.Equal(t, time.Second, b.shutdownTimeout)
	assert.Equal(t, 5*time.Millisecond, b.pollInterval)
	assert.Equal(t, "src", b.Statistics().ComponentID())

	env := NewEmitterRuntimeEnvironment(newCountingEmitter("sink"), nil, WithPipelineID("p"))
	assert.NotSame(t, b, env.base)
}

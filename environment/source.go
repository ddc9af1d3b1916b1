package environment

import (
	"context"
	"fmt"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/pkg/worker"
	"github.com/c360/micropipe/queue"
)

// Executor runs long-lived tasks. *worker.Pool[worker.Task] satisfies it.
type Executor interface {
	Submit(task worker.Task) error
}

// SourceOption configures a SourceRuntimeEnvironment.
type SourceOption func(*SourceRuntimeEnvironment)

// WithExecutor runs the source on an external executor instead of a private goroutine.
func WithExecutor(e Executor) SourceOption {
	return func(s *SourceRuntimeEnvironment) {
		s.executor = e
	}
}

// SourceRuntimeEnvironment pumps a Source into its output queues.
type SourceRuntimeEnvironment struct {
	*base
	source    component.Source
	producers []queue.Producer
	executor  Executor
	done      chan struct{}
}

// NewSourceRuntimeEnvironment registers itself as the source's message callback.
func NewSourceRuntimeEnvironment(
	source component.Source,
	producers []queue.Producer,
	sourceOpts []SourceOption,
	opts ...Option,
) *SourceRuntimeEnvironment {
	env := &SourceRuntimeEnvironment{
		base:      newBase(source, opts),
		source:    source,
		producers: producers,
		done:      make(chan struct{}),
	}
	for _, opt := range sourceOpts {
		opt(env)
	}
	source.SetIncomingMessageCallback(env)
	return env
}

// OnMessage implements component.IncomingMessageCallback. Insert then
// release is the only write path into the output queues.
func (s *SourceRuntimeEnvironment) OnMessage(msg message.Message) {
	start := s.collector.Now()
	accepted := false
	for _, p := range s.producers {
		if p.Insert(msg) {
			accepted = true
			p.WaitStrategy().ForceLockRelease()
		}
	}
	if !accepted && len(s.producers) > 0 {
		s.collector.RecordError()
		if s.metrics != nil {
			s.metrics.RecordError(s.pipelineID, s.id)
		}
		return
	}

	elapsed := s.collector.Now().Sub(start)
	s.collector.Record(elapsed, msg.Size())
	if s.metrics != nil {
		s.metrics.RecordMessage(s.pipelineID, s.id, elapsed)
	}
}

// Start runs the source.
func (s *SourceRuntimeEnvironment) Start(ctx context.Context) error {
	ctx, err := s.markStarted(ctx)
	if err != nil {
		return err
	}

	// runs under the environment context, not the executor's
	task := func(context.Context) error {
		err := s.run(ctx)
		close(s.done)
		s.running.Store(false)
		s.recordState(false)
		return err
	}

	if s.executor != nil {
		if err := s.executor.Submit(task); err != nil {
			s.running.Store(false)
			s.recordState(false)
			close(s.done)
			return errors.WrapTransient(err, "SourceRuntimeEnvironment", "Start", "submit source "+s.id)
		}
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = task(ctx)
	}()
	return nil
}

func (s *SourceRuntimeEnvironment) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panic: %v", r)
		}
		if err != nil && ctx.Err() == nil {
			s.logger.Error("source stopped with error", "error", err)
		} else {
			s.logger.Debug("source finished")
		}
	}()
	return s.source.Run(ctx)
}

// Shutdown stops the source and closes its output queues for writing. A
// private goroutine is awaited; with an external executor only the source is
// stopped and the executor stays untouched.
func (s *SourceRuntimeEnvironment) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		err = s.shutdownComponent(s.source)
		if s.cancel != nil {
			s.cancel()
		}
		s.recordState(false)

		// nothing else writes to these queues; closing them releases an
		// Insert blocked on a full queue
		for _, p := range s.producers {
			_ = p.Close()
		}

		if !s.started.Load() {
			return
		}
		if s.executor == nil {
			if werr := s.waitGoroutines(); werr != nil {
				err = errors.Join(err, werr)
			}
		}
	})
	return err
}

// Done is closed once the source's Run has returned.
func (s *SourceRuntimeEnvironment) Done() <-chan struct{} {
	return s.done
}

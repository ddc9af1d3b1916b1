package environment

import (
	"context"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/queue"
)

// EmitterRuntimeEnvironment feeds an Emitter from its input queues.
type EmitterRuntimeEnvironment struct {
	*base
	emitter   component.Emitter
	consumers []queue.Consumer
}

// NewEmitterRuntimeEnvironment creates an environment for emitter.
func NewEmitterRuntimeEnvironment(
	emitter component.Emitter,
	consumers []queue.Consumer,
	opts ...Option,
) *EmitterRuntimeEnvironment {
	return &EmitterRuntimeEnvironment{
		base:      newBase(emitter, opts),
		emitter:   emitter,
		consumers: consumers,
	}
}

// Start launches one loop per input queue.
func (e *EmitterRuntimeEnvironment) Start(ctx context.Context) error {
	ctx, err := e.markStarted(ctx)
	if err != nil {
		return err
	}
	for _, c := range e.consumers {
		e.wg.Add(1)
		go e.consume(ctx, c, e.handle)
	}
	return nil
}

func (e *EmitterRuntimeEnvironment) handle(ctx context.Context, msg message.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emitter.OnMessage(ctx, msg)
}

// Shutdown implements RuntimeEnvironment.
func (e *EmitterRuntimeEnvironment) Shutdown() error {
	var err error
	e.stopOnce.Do(func() {
		err = errors.Join(e.stopConsumers(e.consumers), e.shutdownComponent(e.emitter))
	})
	return err
}

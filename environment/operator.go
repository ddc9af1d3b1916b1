package environment

import (
	"context"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/queue"
)

// DirectResponseOperatorRuntimeEnvironment applies an operator to each input
// message and forwards the results to every output queue.
type DirectResponseOperatorRuntimeEnvironment struct {
	*base
	operator  component.DirectResponseOperator
	consumers []queue.Consumer
	producers []queue.Producer
}

// NewDirectResponseOperatorRuntimeEnvironment creates an environment for operator.
func NewDirectResponseOperatorRuntimeEnvironment(
	operator component.DirectResponseOperator,
	consumers []queue.Consumer,
	producers []queue.Producer,
	opts ...Option,
) *DirectResponseOperatorRuntimeEnvironment {
	return &DirectResponseOperatorRuntimeEnvironment{
		base:      newBase(operator, opts),
		operator:  operator,
		consumers: consumers,
		producers: producers,
	}
}

// Start launches one loop per input queue.
func (o *DirectResponseOperatorRuntimeEnvironment) Start(ctx context.Context) error {
	ctx, err := o.markStarted(ctx)
	if err != nil {
		return err
	}
	for _, c := range o.consumers {
		o.wg.Add(1)
		go o.consume(ctx, c, o.handle)
	}
	return nil
}

func (o *DirectResponseOperatorRuntimeEnvironment) handle(_ context.Context, msg message.Message) error {
	o.mu.Lock()
	out, err := o.operator.OnMessage(msg)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.forward(o.producers, out)
	return nil
}

// Shutdown implements RuntimeEnvironment.
func (o *DirectResponseOperatorRuntimeEnvironment) Shutdown() error {
	var err error
	o.stopOnce.Do(func() {
		err = errors.Join(o.stopConsumers(o.consumers), o.shutdownComponent(o.operator))
	})
	return err
}

// DelayedResponseOperatorRuntimeEnvironment buffers input in an operator and
// forwards its results whenever the wait strategy flushes.
type DelayedResponseOperatorRuntimeEnvironment struct {
	*base
	operator  component.DelayedResponseOperator
	strategy  component.DelayedResponseWaitStrategy
	consumers []queue.Consumer
	producers []queue.Producer
}

// NewDelayedResponseOperatorRuntimeEnvironment installs strategy on operator
// and wires the strategy's flush to this environment.
func NewDelayedResponseOperatorRuntimeEnvironment(
	operator component.DelayedResponseOperator,
	strategy component.DelayedResponseWaitStrategy,
	consumers []queue.Consumer,
	producers []queue.Producer,
	opts ...Option,
) *DelayedResponseOperatorRuntimeEnvironment {
	env := &DelayedResponseOperatorRuntimeEnvironment{
		base:      newBase(operator, opts),
		operator:  operator,
		strategy:  strategy,
		consumers: consumers,
		producers: producers,
	}
	operator.SetWaitStrategy(strategy)
	strategy.Init(env.flush)
	return env
}

// Start launches one loop per input queue.
func (d *DelayedResponseOperatorRuntimeEnvironment) Start(ctx context.Context) error {
	ctx, err := d.markStarted(ctx)
	if err != nil {
		return err
	}
	for _, c := range d.consumers {
		d.wg.Add(1)
		go d.consume(ctx, c, d.handle)
	}
	return nil
}

func (d *DelayedResponseOperatorRuntimeEnvironment) handle(_ context.Context, msg message.Message) error {
	d.mu.Lock()
	err := d.operator.OnMessage(msg)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	// outside the lock: the strategy may flush synchronously
	d.strategy.OnMessage(msg)
	return nil
}

// flush drains the operator. Called by the wait strategy.
func (d *DelayedResponseOperatorRuntimeEnvironment) flush() {
	d.mu.Lock()
	var out []message.Message
	if d.operator.NumberOfMessagesSinceLastResult() > 0 {
		out = d.operator.GetResult()
	}
	d.mu.Unlock()

	if len(out) > 0 {
		d.forward(d.producers, out)
	}
}

// Shutdown stops the loops, flushes what is buffered and stops the strategy.
func (d *DelayedResponseOperatorRuntimeEnvironment) Shutdown() error {
	var err error
	d.stopOnce.Do(func() {
		err = d.stopConsumers(d.consumers)
		d.strategy.Release()
		d.strategy.Shutdown()
		err = errors.Join(err, d.shutdownComponent(d.operator))
	})
	return err
}

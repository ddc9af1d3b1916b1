package worker

import (
	"context"
)

// Task is a unit of work run by a task pool. Long-running tasks (a source's
// Run loop) hold their worker until they return.
type Task func(ctx context.Context) error

// NewTaskPool creates a pool whose work items are tasks. Every accepted task
// gets a worker of its own; Submit fails once all workers are taken.
func NewTaskPool(workers int, opts ...Option[Task]) *Pool[Task] {
	if workers <= 0 {
		workers = 10
	}
	opts = append([]Option[Task]{WithDedicatedWorkers[Task]()}, opts...)
	return NewPool(workers, workers, runTask, opts...)
}

func runTask(ctx context.Context, task Task) error {
	if task == nil {
		return nil
	}
	return task(ctx)
}

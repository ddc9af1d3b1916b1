// Package worker provides a generic worker pool for concurrent task processing.
//
// Pool[T] runs a fixed number of goroutines that take work items from a
// bounded channel. Submit never blocks: it returns ErrQueueFull when the
// channel is at capacity. Panics inside the processor are recovered and counted
// as failures. Statistics are always tracked; Prometheus metrics are added
// with WithMetricsRegistry.
//
// NewTaskPool specialises the pool for Task values. micropipe uses a task pool
// as the shared executor for source runtime environments:
//
//	pool := worker.NewTaskPool(8, worker.WithLogger[worker.Task](logger))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//	_ = pool.Submit(func(ctx context.Context) error { return src.Run(ctx) })
package worker

// Package natsclient wraps the NATS Go client with a circuit breaker and
// structured logging. One Client is shared by every NATS-backed part of a
// node: the nats-source and nats-emitter components and the statistics sink.
//
// # Lifecycle
//
// A Client starts disconnected. Connect dials once; ConnectWithRetry retries
// with exponential backoff from pkg/retry. After a configurable number of
// consecutive failures (default 5) the circuit opens and Connect fails fast
// with ErrCircuitOpen until the backoff elapses. Close unsubscribes, drains
// and closes the connection and is safe to call more than once.
//
// Status moves through:
//
//	disconnected -> connecting -> connected -> reconnecting -> connected
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.Quick()); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	unsubscribe, err := client.Subscribe(ctx, "sensors.>", func(ctx context.Context, data []byte) {
//		// handle data
//	})
//
// # Testing
//
// NewTestClient starts a NATS server in a container with testcontainers-go
// and returns a connected Client. Tests using it run only when the
// INTEGRATION_TESTS environment variable is set.
package natsclient

// Package retry runs an operation again with exponential backoff until it
// succeeds or the configured attempts run out.
//
// Do is used wherever a node reaches for an outside resource: the NATS client
// on connect, the udp source when binding its socket and the http-post emitter
// for each request.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Wrap an error with NonRetryable to stop at once, for example on a 4xx
// response or a malformed address. Cancelling ctx also stops Do, during an
// attempt or during the backoff sleep; the returned error then matches both
// ctx.Err() and the last operation error.
//
// Config.Clock accepts a github.com/benbjohnson/clock mock so backoff can be
// driven from tests. Config.OnRetry observes each failed attempt before the
// sleep.
package retry

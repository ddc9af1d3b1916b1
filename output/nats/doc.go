// Package nats provides the nats-emitter component, which publishes each
// message body to a NATS subject.
//
// Settings:
//
//	subject         subject to publish to (required)
//	url             dedicated server URL; empty uses the node's shared connection
//	connectTimeout  dial timeout for a dedicated connection (default 5s)
//
// Publish failures are returned to the runtime environment, which logs them
// and counts them in the component statistics. Shutdown flushes pending
// publishes before a dedicated connection is closed.
package nats

// Package nats provides the nats-source component, which subscribes to a NATS
// subject and emits each message body into the pipeline.
//
// Settings:
//
//	subject         subject or wildcard to subscribe to (required)
//	url             dedicated server URL; empty uses the node's shared connection
//	connectTimeout  dial timeout for a dedicated connection (default 5s)
//
// Message timestamps are the receive time. A dedicated connection is opened by
// Initialize and closed by Shutdown; the shared one belongs to the node.
package nats

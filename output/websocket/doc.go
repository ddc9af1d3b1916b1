// Package websocket provides the websocket emitter, which serves a WebSocket
// endpoint and broadcasts every message to the clients connected to it.
//
// Settings:
//
//	port          listen port; 0 picks a free one (default 8082)
//	bind          listen address (default all interfaces)
//	path          upgrade path (default /ws)
//	clientBuffer  frames queued per client before the oldest is dropped (default 256)
//	pingInterval  keepalive ping period (default 30s)
//
// Each message is wrapped in an envelope:
//
//	{"type":"data","id":"<uuid>","timestamp":1700000000000,"payload":...}
//
// The payload is the body itself when it is valid JSON and a JSON string
// otherwise. Every client has its own outbox and writer goroutine, so a slow
// client loses its oldest frames rather than holding up the pipeline. Inbound
// frames are read and discarded.
//
// The listener is opened by Initialize and closed by Shutdown, which also
// sends a close frame to every client.
package websocket

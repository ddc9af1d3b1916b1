// Package generator provides the generator source, which emits numbered
// messages for load tests and demos.
//
// Settings:
//
//	count   messages to emit before finishing; 0 runs until shutdown (default 0)
//	rate    messages per second; 0 emits as fast as the queues accept (default 0)
//	burst   token bucket size when rate is set (default 1)
//	prefix  text placed before the sequence number (default "")
//	suffix  text placed after the sequence number (default "")
//
// With prefix "reading-" the bodies are "reading-0", "reading-1" and so on.
// Prefix `{"seq":` with suffix `}` yields JSON bodies.
// Rate limiting uses golang.org/x/time/rate.
package generator

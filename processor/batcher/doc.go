// Package batcher provides the batcher operator, a delayed response operator
// that merges the messages buffered between two flushes into one.
//
// When a flush happens is decided by the wait strategy the runtime installs
// (message count, timer or content marker). The batcher only joins:
//
//	prefix + body1 + separator + body2 + ... + suffix
//
// Settings:
//
//	separator  placed between bodies (default "\n"; set "" to concatenate)
//	prefix     placed before the first body (default "")
//	suffix     placed after the last body (default "")
//
// prefix "[", separator "," and suffix "]" turn a batch of JSON documents
// into a JSON array.
package batcher

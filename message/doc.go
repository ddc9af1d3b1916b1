// Package message defines the unit of data that flows through a pipeline.
//
// A Message is an opaque byte payload plus a millisecond timestamp. Messages
// are immutable once created: components must not modify Body in place and
// call Clone when they need a private, mutable copy. New copies the supplied
// body so producers may reuse their buffers.
package message

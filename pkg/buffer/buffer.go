// Package buffer provides a bounded, thread-safe FIFO ring with configurable
// overflow policies. Bounded queues store their messages in a Ring.
package buffer

import "strings"

// OverflowPolicy defines how the ring behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest rejects new items while the ring is full.
	DropNewest

	// Block makes Write wait until space is available or the ring is closed.
	Block
)

// String returns the configuration name of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps a configuration name to a policy. The empty string
// selects DropOldest.
func ParseOverflowPolicy(name string) (OverflowPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "drop-oldest", "dropoldest":
		return DropOldest, true
	case "drop-newest", "dropnewest":
		return DropNewest, true
	case "block":
		return Block, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with each item discarded by the overflow policy.
type DropCallback[T any] func(item T)

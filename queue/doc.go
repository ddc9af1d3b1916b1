// Package queue implements the FIFO channels that connect pipeline components.
//
// A Queue has exactly one Producer and any number of Consumer handles. All
// consumer handles read the same FIFO and compete for messages: each message
// is delivered to exactly one consumer. Insert never blocks under the default
// unbounded storage. A capacity setting switches to a bounded ring whose
// overflow policy decides between dropping and blocking.
//
// Consumers avoid spinning on an empty queue through a WaitStrategy shared by
// every handle of the queue. The producer side calls ForceLockRelease after
// each successful insert so that parked consumers observe the new message:
//
//	if q.Producer().Insert(msg) {
//	    q.Producer().WaitStrategy().ForceLockRelease()
//	}
//
//	msg, ok := consumer.WaitStrategy().WaitFor(ctx, consumer)
//
// WaitFor may return without a message after a wakeup; callers loop.
package queue

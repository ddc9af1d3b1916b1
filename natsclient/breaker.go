package natsclient

import (
	"sync"
	"time"
)

const initialBackoff = time.Second

// breaker counts consecutive connection failures. Every threshold failures
// it trips and doubles its backoff, capped at maxBackoff.
type breaker struct {
	threshold  int32
	maxBackoff time.Duration

	mu       sync.Mutex
	failures int32
	round    int32
	backoff  time.Duration
}

func newBreaker() breaker {
	return breaker{
		threshold:  5,
		maxBackoff: time.Minute,
		backoff:    initialBackoff,
	}
}

// fail records one failure. When the failure trips the breaker, tripped is
// true and wait is how long the circuit stays open.
func (b *breaker) fail() (total int32, tripped bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.round++
	if b.round < b.threshold {
		return b.failures, false, 0
	}
	wait = b.backoff
	b.backoff = min(b.backoff*2, b.maxBackoff)
	b.round = 0
	return b.failures, true, wait
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.round = 0
	b.backoff = initialBackoff
}

func (b *breaker) state() (failures int32, backoff time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.backoff
}

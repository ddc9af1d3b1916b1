// Package counter provides the counter emitter, a sink that counts messages.
//
// Settings:
//
//	expected  log once this many messages arrived (default 0, disabled)
//	distinct  remember bodies and count duplicates (default false)
//
// Tests block on Latch(n) to wait for a number of deliveries without polling:
//
//	done := c.Latch(10000)
//	select {
//	case <-done:
//	case <-time.After(30 * time.Second):
//		t.Fatal("messages lost")
//	}
package counter

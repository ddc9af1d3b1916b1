package stats

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Collector accumulates statistics for one component. Record may run on the
// environment goroutine while Snapshot runs on the reporter; both take mu.
type Collector struct {
	nodeID      string
	pipelineID  string
	componentID string
	clock       clock.Clock

	mu          sync.Mutex
	window      int64
	start       time.Time
	count       int64
	errors      int64
	minDuration time.Duration
	maxDuration time.Duration
	sumDuration time.Duration
	minSize     int
	maxSize     int
	sumSize     int64

	totalMessages int64
	totalErrors   int64
}

// NewCollector creates a collector. A nil clock uses the wall clock.
func NewCollector(nodeID, pipelineID, componentID string, clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.New()
	}
	return &Collector{
		nodeID:      nodeID,
		pipelineID:  pipelineID,
		componentID: componentID,
		clock:       clk,
		start:       clk.Now(),
	}
}

// ComponentID returns the id of the observed component.
func (c *Collector) ComponentID() string {
	return c.componentID
}

// Now returns the collector clock's current time.
func (c *Collector) Now() time.Time {
	return c.clock.Now()
}

// Record adds one successfully processed message.
func (c *Collector) Record(duration time.Duration, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		c.minDuration, c.maxDuration = duration, duration
		c.minSize, c.maxSize = size, size
	} else {
		c.minDuration = min(c.minDuration, duration)
		c.maxDuration = max(c.maxDuration, duration)
		c.minSize = min(c.minSize, size)
		c.maxSize = max(c.maxSize, size)
	}
	c.count++
	c.sumDuration += duration
	c.sumSize += int64(size)
	c.totalMessages++
}

// RecordError counts one message whose processing failed.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
	c.totalErrors++
}

// Totals returns message and error counts since creation.
func (c *Collector) Totals() (messages, errs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalMessages, c.totalErrors
}

// Snapshot closes the current window, returns it and starts the next one.
func (c *Collector) Snapshot() ComponentStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	s := ComponentStatistics{
		NodeID:      c.nodeID,
		PipelineID:  c.pipelineID,
		ComponentID: c.componentID,
		NumMessages: clamp32(c.count),
		StartTime:   c.start.UnixMilli(),
		EndTime:     now.UnixMilli(),
		Errors:      clamp32(c.errors),
		Window:      c.window,
	}
	if c.count > 0 {
		s.MinDuration = clamp32(c.minDuration.Microseconds())
		s.MaxDuration = clamp32(c.maxDuration.Microseconds())
		s.AvgDuration = clamp32(c.sumDuration.Microseconds() / c.count)
		s.MinSize = clamp32(int64(c.minSize))
		s.MaxSize = clamp32(int64(c.maxSize))
		s.AvgSize = clamp32(c.sumSize / c.count)
	}

	c.window++
	c.start = now
	c.count, c.errors = 0, 0
	c.minDuration, c.maxDuration, c.sumDuration = 0, 0, 0
	c.minSize, c.maxSize, c.sumSize = 0, 0, 0

	return s
}

// GetStatistics closes the current window and returns it encoded.
func (c *Collector) GetStatistics() []byte {
	return c.Snapshot().Encode()
}

func clamp32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

package rpcfabric

import (
	"sync"
	"time"
)

// Stats tracks the rolling request-per-second average and cumulative
// counters the fabric's 1s/15s housekeeping ticks report (spec §4.5).
type Stats struct {
	mu           sync.Mutex
	windowStart  time.Time
	windowCount  int64
	rollingRPS   float64
	totalSent    int64
	totalDropped int64
}

func newStats() *Stats {
	return &Stats{windowStart: time.Now()}
}

func (s *Stats) recordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowCount++
	s.totalSent++
}

func (s *Stats) recordDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalDropped++
}

// tickRPS closes out the current 1s window, folding it into the rolling
// average (spec §4.5: "a 1 s metrics tick that updates a rolling RPS
// average"). A simple exponential moving average keeps one prior sample's
// worth of memory without needing a ring buffer.
func (s *Stats) tickRPS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := time.Since(s.windowStart).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	sample := float64(s.windowCount) / elapsed
	const alpha = 0.3
	s.rollingRPS = alpha*sample + (1-alpha)*s.rollingRPS
	s.windowCount = 0
	s.windowStart = time.Now()
}

// Snapshot is a point-in-time read of the fabric's stats, emitted on the
// 15s tick.
type Snapshot struct {
	RollingRPS   float64
	TotalSent    int64
	TotalDropped int64
	PendingCalls int
}

func (s *Stats) snapshot(pending int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RollingRPS:   s.rollingRPS,
		TotalSent:    s.totalSent,
		TotalDropped: s.totalDropped,
		PendingCalls: pending,
	}
}

package scr_nav

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Feed names used by the inputs.
const (
	FeedScan = "scan"
	FeedPose = "pose"
)

// FeedStats counts messages on one input feed.
type FeedStats struct {
	Accepted   uint64
	Dropped    uint64
	LastUpdate time.Time
}

// Age returns the time since the last accepted message, or -1 if none arrived yet.
func (s FeedStats) Age(now time.Time) time.Duration {
	if s.LastUpdate.IsZero() {
		return -1
	}
	return now.Sub(s.LastUpdate)
}

// FeedMonitor tracks input feed activity for diagnostics.
// It never influences control decisions.
type FeedMonitor struct {
	clock clock.Clock

	mu    sync.Mutex
	feeds map[string]*FeedStats
}

// NewFeedMonitor constructs a monitor reading time from clk.
func NewFeedMonitor(clk clock.Clock) *FeedMonitor {
	if clk == nil {
		clk = clock.New()
	}
	return &FeedMonitor{clock: clk, feeds: map[string]*FeedStats{}}
}

func (m *FeedMonitor) entry(name string) *FeedStats {
	st, ok := m.feeds[name]
	if !ok {
		st = &FeedStats{}
		m.feeds[name] = st
	}
	return st
}

// Accepted records a message that was applied to the controller.
func (m *FeedMonitor) Accepted(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.entry(name)
	st.Accepted++
	st.LastUpdate = m.clock.Now()
}

// Dropped records a message that could not be parsed.
func (m *FeedMonitor) Dropped(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(name).Dropped++
}

// Stats returns a copy of the counters for name.
func (m *FeedMonitor) Stats(name string) FeedStats {
	if m == nil {
		return FeedStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.feeds[name]; ok {
		return *st
	}
	return FeedStats{}
}

// Age returns the age of the last accepted message on name.
func (m *FeedMonitor) Age(name string) time.Duration {
	if m == nil {
		return -1
	}
	return m.Stats(name).Age(m.clock.Now())
}

// Package perfmonitor times repeated units of work such as one event loop
// cycle. A Monitor is owned by a single goroutine.
package perfmonitor

import "time"

// Monitor measures the duration between Start and Stop and keeps running
// totals across cycles.
type Monitor struct {
	now     func() time.Time
	started time.Time
	last    time.Duration
	max     time.Duration
	total   time.Duration
	cycles  uint64
}

// NewMonitor creates a Monitor using the wall clock.
func NewMonitor() *Monitor {
	return newMonitor(time.Now)
}

func newMonitor(now func() time.Time) *Monitor {
	return &Monitor{now: now}
}

// Start marks the beginning of a cycle. Calling Start twice restarts the
// cycle.
func (m *Monitor) Start() {
	m.started = m.now()
}

// Stop ends the current cycle and records its duration.
//
// Returns:
//   - The elapsed time since Start, or 0 if no cycle was started
func (m *Monitor) Stop() time.Duration {
	if m.started.IsZero() {
		return 0
	}

	elapsed := m.now().Sub(m.started)
	m.started = time.Time{}
	m.last = elapsed
	m.total += elapsed
	m.cycles++
	if elapsed > m.max {
		m.max = elapsed
	}

	return elapsed
}

// Last returns the duration of the most recent completed cycle.
func (m *Monitor) Last() time.Duration { return m.last }

// Max returns the longest completed cycle.
func (m *Monitor) Max() time.Duration { return m.max }

// Cycles returns the number of completed cycles.
func (m *Monitor) Cycles() uint64 { return m.cycles }

// Mean returns the average cycle duration, or 0 before the first cycle.
func (m *Monitor) Mean() time.Duration {
	if m.cycles == 0 {
		return 0
	}

	return m.total / time.Duration(m.cycles)
}

// Reset clears all recorded cycles and any cycle in progress.
func (m *Monitor) Reset() {
	*m = Monitor{now: m.now}
}

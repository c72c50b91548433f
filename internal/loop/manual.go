package loop

import "time"

// Manual is a Scheduler on virtual time. Nothing runs until Step or Flush is
// called, which makes frame and timer ordering deterministic.
type Manual struct {
	queue
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time { return m.now }

func (m *Manual) RequestFrame(fn func(now time.Time)) Handle { return m.requestFrame(fn) }

func (m *Manual) After(d time.Duration, fn func()) Handle { return m.after(m.now.Add(d), fn) }

func (m *Manual) Post(fn func()) { m.post(fn) }

func (m *Manual) Cancel(h Handle) { m.cancel(h) }

// Flush runs posted closures without advancing time.
func (m *Manual) Flush() { m.drain() }

// Step advances virtual time by d and runs one frame: posted closures first,
// then due timers, then frame callbacks.
func (m *Manual) Step(d time.Duration) {
	m.now = m.now.Add(d)
	m.drain()
	m.fireTimers(m.now)
	m.fireFrames(m.now)
}

// Run steps n frames of length period.
func (m *Manual) Run(n int, period time.Duration) {
	for i := 0; i < n; i++ {
		m.Step(period)
	}
}

// Pending reports how many callbacks and closures are still queued.
func (m *Manual) Pending() int { return m.pending() }

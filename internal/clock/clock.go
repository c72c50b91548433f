// Package clock advances a beat counter from render-loop frames.
package clock

import (
	"errors"
	"fmt"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/loop"
)

var (
	ErrRunning      = errors.New("clock is already running")
	ErrInvalidTempo = errors.New("tempo must be positive")
)

// Policy decides where the next beat is measured from once a boundary has
// been crossed.
type Policy uint8

const (
	// PolicyReset measures the next beat from the frame that crossed the
	// boundary. A late frame pushes every following beat later.
	PolicyReset Policy = iota
	// PolicyAccumulate measures the next beat from the ideal boundary, so
	// late frames are caught up, one beat per frame.
	PolicyAccumulate
)

func (p Policy) String() string {
	if p == PolicyAccumulate {
		return "accumulate"
	}
	return "reset"
}

// Tick is delivered on every frame while the clock runs.
type Tick struct {
	Now     time.Time
	Beat    int  // -1 until the first boundary is crossed
	NewBeat bool // Beat was incremented on this frame
}

type Clock struct {
	sched   loop.Scheduler
	policy  Policy
	running *Handle
}

func New(sched loop.Scheduler, policy Policy) *Clock {
	return &Clock{sched: sched, policy: policy}
}

// Handle is a running clock. It is consumed by Stop.
type Handle struct {
	clock    *Clock
	duration time.Duration
	last     time.Time
	beat     int
	frame    loop.Handle
	stopped  bool
	onTick   func(Tick)
}

func BeatDuration(bpm float64) time.Duration {
	return time.Duration(float64(time.Minute) / bpm)
}

// Start begins ticking at bpm. onTick runs on the scheduler goroutine for
// every frame until Stop is called.
func (c *Clock) Start(bpm float64, onTick func(Tick)) (*Handle, error) {
	if c.running != nil {
		return nil, ErrRunning
	}
	if bpm <= 0 {
		return nil, ErrInvalidTempo
	}
	h := &Handle{
		clock:    c,
		duration: BeatDuration(bpm),
		last:     c.sched.Now(),
		beat:     -1,
		onTick:   onTick,
	}
	c.running = h
	h.frame = c.sched.RequestFrame(h.tick)
	return h, nil
}

// Stop cancels the pending frame. No tick is delivered after Stop returns.
// Stopping a nil or already stopped handle does nothing.
func (c *Clock) Stop(h *Handle) {
	if h == nil || h.stopped {
		return
	}
	h.stopped = true
	c.sched.Cancel(h.frame)
	if c.running == h {
		c.running = nil
	}
}

func (c *Clock) Running() bool { return c.running != nil }

func (h *Handle) Beat() int { return h.beat }

func (h *Handle) BeatDuration() time.Duration { return h.duration }

func (h *Handle) tick(now time.Time) {
	if h.stopped {
		return
	}

	t := Tick{Now: now, Beat: h.beat}
	if now.Sub(h.last) >= h.duration {
		if h.clock.policy == PolicyAccumulate {
			h.last = h.last.Add(h.duration)
		} else {
			h.last = now
		}
		h.beat++
		t.Beat = h.beat
		t.NewBeat = true
	}

	if h.onTick != nil {
		h.onTick(t)
	}

	// onTick may have stopped the clock.
	if !h.stopped {
		h.frame = h.clock.sched.RequestFrame(h.tick)
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "reset", "":
		return PolicyReset, nil
	case "accumulate":
		return PolicyAccumulate, nil
	}
	return PolicyReset, fmt.Errorf("unknown drift policy %q", s)
}

// Package loop provides the cooperative scheduler the training core runs on:
// a render-loop style frame clock plus timers and posted closures, all
// executed on one goroutine.
package loop

import (
	"context"
	"time"
)

// Loop is a real-time Scheduler driven by a frame period.
type Loop struct {
	queue
	period time.Duration
	now    func() time.Time
	wake   chan struct{}
}

func New(period time.Duration) *Loop {
	if period <= 0 {
		period = 16 * time.Millisecond
	}
	return &Loop{
		period: period,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

func (l *Loop) Now() time.Time { return l.now() }

func (l *Loop) RequestFrame(fn func(now time.Time)) Handle { return l.requestFrame(fn) }

func (l *Loop) After(d time.Duration, fn func()) Handle { return l.after(l.now().Add(d), fn) }

func (l *Loop) Cancel(h Handle) { l.cancel(h) }

func (l *Loop) Post(fn func()) {
	l.post(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes scheduled work until ctx is cancelled. Posted closures run
// as soon as possible; timers and frame callbacks run once per period.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case <-l.wake:
			l.drain()
		case <-ticker.C:
			now := l.now()
			l.drain()
			l.fireTimers(now)
			l.fireFrames(now)
		}
	}
}

package loop

import (
	"sort"
	"sync"
	"time"
)

// Handle identifies a scheduled frame callback or timer.
type Handle uint64

// Scheduler is the cooperative scheduler the session core runs on. Frame
// callbacks, timers and posted closures all execute on a single goroutine,
// so code running inside them may share state without locks.
type Scheduler interface {
	Now() time.Time
	// RequestFrame runs fn once on the next frame.
	RequestFrame(fn func(now time.Time)) Handle
	// After runs fn once, on the first frame at or after d from now.
	After(d time.Duration, fn func()) Handle
	// Post runs fn on the scheduler goroutine. Safe from any goroutine.
	Post(fn func())
	// Cancel guarantees the callback behind h does not run afterwards when
	// called from the scheduler goroutine. Unknown handles are ignored.
	Cancel(h Handle)
}

type timer struct {
	handle Handle
	due    time.Time
	fn     func()
}

type frame struct {
	handle Handle
	fn     func(time.Time)
}

// queue holds pending work for Loop and Manual.
type queue struct {
	mu     sync.Mutex
	next   Handle
	posted []func()
	frames []frame
	timers []timer
	live   map[Handle]struct{}
}

func (q *queue) handle() Handle {
	if q.live == nil {
		q.live = make(map[Handle]struct{})
	}
	q.next++
	q.live[q.next] = struct{}{}
	return q.next
}

func (q *queue) requestFrame(fn func(time.Time)) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.handle()
	q.frames = append(q.frames, frame{handle: h, fn: fn})
	return h
}

func (q *queue) after(due time.Time, fn func()) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.handle()
	q.timers = append(q.timers, timer{handle: h, due: due, fn: fn})
	return h
}

func (q *queue) post(fn func()) {
	q.mu.Lock()
	q.posted = append(q.posted, fn)
	q.mu.Unlock()
}

func (q *queue) cancel(h Handle) {
	q.mu.Lock()
	delete(q.live, h)
	q.mu.Unlock()
}

// claim removes h from the live set and reports whether it was still live.
func (q *queue) claim(h Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.live[h]; !ok {
		return false
	}
	delete(q.live, h)
	return true
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		posted := q.posted
		q.posted = nil
		q.mu.Unlock()
		if len(posted) == 0 {
			return
		}
		for _, fn := range posted {
			fn()
		}
	}
}

func (q *queue) fireTimers(now time.Time) {
	q.mu.Lock()
	var due, rest []timer
	for _, t := range q.timers {
		if _, ok := q.live[t.handle]; !ok {
			continue
		}
		if now.Before(t.due) {
			rest = append(rest, t)
		} else {
			due = append(due, t)
		}
	}
	q.timers = rest
	q.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		// An earlier timer in this batch may have cancelled t.
		if q.claim(t.handle) {
			t.fn()
		}
	}
}

func (q *queue) fireFrames(now time.Time) {
	q.mu.Lock()
	frames := q.frames
	q.frames = nil
	q.mu.Unlock()

	for _, f := range frames {
		if q.claim(f.handle) {
			f.fn(now)
		}
	}
}

func (q *queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live) + len(q.posted)
}

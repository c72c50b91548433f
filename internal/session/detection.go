package session

import (
	"git.lost.host/meutraa/flowtrain/internal/detector"
	"git.lost.host/meutraa/flowtrain/internal/game"
)

// runOps executes detector lifecycle calls one at a time, in the order they
// were requested, off the scheduler goroutine.
func (s *Session) runOps() {
	defer close(s.opsDone)
	for op := range s.ops {
		op()
	}
}

func (s *Session) enqueue(op func()) {
	if s.closed {
		return
	}
	s.ops <- op
}

// flushOps blocks until every queued detector call has returned.
func (s *Session) flushOps() {
	if s.closed {
		return
	}
	done := make(chan struct{})
	s.enqueue(func() { close(done) })
	<-done
}

func (s *Session) startDetector() {
	if s.detecting || s.camera == nil {
		return
	}
	s.detecting = true
	s.generation++
	gen := s.generation

	det, src := s.det, s.camera
	opts := detector.Options{
		Mirror:   s.opts.Mirror,
		GridMode: s.state.GridMode,
		OnError: func(err error) {
			s.sched.Post(func() { s.onDetectorError(gen, err) })
		},
	}
	onSample := func(sample game.Sample) {
		s.sched.Post(func() { s.deposit(gen, sample) })
	}

	s.log.Debugf("starting detection on %s in %s mode", src.Name(), opts.GridMode)
	s.enqueue(func() {
		err := det.StartRealTimeDetection(s.ctx, src, onSample, opts)
		s.sched.Post(func() {
			if nil != err {
				s.onDetectorError(gen, err)
				return
			}
			if gen == s.generation && s.detecting {
				s.state.DetectionActive = true
				s.publish()
			}
		})
	})
}

// stopDetector also cancels a pending debounced restart.
func (s *Session) stopDetector() {
	s.sched.Cancel(s.restart)
	s.restart = 0
	s.state.DetectionActive = false
	s.state.Holding = false
	if !s.detecting {
		return
	}
	s.detecting = false
	s.generation++
	det := s.det
	s.enqueue(func() { det.StopDetection() })
}

// deposit records the latest sample. Evaluation waits for the next clock
// tick so that every beat is judged from the frame loop.
func (s *Session) deposit(gen uint64, sample game.Sample) {
	if gen != s.generation || s.state.Mode != game.Performing {
		return
	}
	s.state.Frame = &sample
	s.state.FrameAt = s.sched.Now()
	s.state.DetectionActive = true
	s.state.Holding = false
	s.publish()
}

// onDetectorError handles a detector that stopped on its own. The
// performance carries on; beats without fresh samples are judged as misses.
func (s *Session) onDetectorError(gen uint64, err error) {
	if gen != s.generation {
		return
	}
	defer s.publish()
	s.stopDetector()
	s.fail("Position detection stopped", err)
}

// onGridModeChanged restarts detection with the new mode once the user has
// stopped toggling. Until the restarted detector reports, beats are judged
// against the last sample taken in the previous mode.
func (s *Session) onGridModeChanged(mode game.GridMode) {
	defer s.publish()
	s.state.GridMode = mode
	s.log.Infof("grid mode changed to %s", mode)
	if s.state.Mode != game.Performing || (!s.detecting && s.restart == 0) {
		return
	}

	s.stopDetector()
	s.state.Holding = s.state.Frame != nil
	s.restart = s.sched.After(s.opts.Debounce, func() {
		s.restart = 0
		if s.state.Mode != game.Performing {
			return
		}
		s.startDetector()
		s.publish()
	})
}

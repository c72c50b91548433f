// Package session runs one training screen: the setup, countdown,
// performing and review state machine, the beat clock, the detector
// lifecycle and the per-beat hit evaluation.
//
// Every method of Session must be called on the scheduler goroutine. Other
// goroutines use Dispatch, and read state through Published.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/clock"
	"git.lost.host/meutraa/flowtrain/internal/detector"
	"git.lost.host/meutraa/flowtrain/internal/feedback"
	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/log"
	"git.lost.host/meutraa/flowtrain/internal/loop"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

var (
	ErrCameraNotReady    = errors.New("camera is not ready")
	ErrDetectorNotReady  = errors.New("detector is not initialised")
	ErrNoSequence        = errors.New("no sequence selected")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrClosed            = errors.New("session is closed")
)

const DefaultDebounce = 150 * time.Millisecond

type Options struct {
	// Countdown inserts a countdown of this many seconds before performing.
	// Zero starts performing immediately.
	Countdown int
	// StaleAfter is how old a sample may be before it counts as nothing
	// detected. Zero disables the age check.
	StaleAfter time.Duration
	// Debounce delays a detector restart after a grid mode change.
	Debounce time.Duration
	Mirror   bool
	Policy   clock.Policy
	// Timed marks sessions played against the clock, for achievements.
	Timed bool
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Scheduler  loop.Scheduler
	Detector   detector.PositionDetector
	Haptics    feedback.Haptics
	Summarizer *score.Summarizer
	Settings   *Settings
	Log        *log.Logger
}

type Session struct {
	sched      loop.Scheduler
	det        detector.PositionDetector
	haptics    feedback.Haptics
	summarizer *score.Summarizer
	settings   *Settings
	log        *log.Logger
	opts       Options

	state     State
	clock     *clock.Clock
	beat      *clock.Handle
	evaluator *evaluator

	camera        detector.FrameSource
	detectorReady bool
	// detecting is true between asking the detector to start and asking it
	// to stop. generation changes on every start and stop so callbacks from
	// an earlier detector session can be recognised and dropped.
	detecting  bool
	generation uint64
	restart    loop.Handle
	countdown  loop.Handle
	summarized bool

	ops     chan func()
	opsDone chan struct{}
	// ctx bounds detector calls. publishCtx bounds summary publishing and
	// outlives ctx so that Close can flush pending summaries.
	ctx           context.Context
	cancel        context.CancelFunc
	publishCtx    context.Context
	cancelPublish context.CancelFunc
	unsubscribe   func()
	closed        bool

	published atomic.Pointer[Snapshot]
}

func New(seq *game.Sequence, deps Deps, opts Options) *Session {
	if deps.Haptics == nil {
		deps.Haptics = feedback.Nop{}
	}
	if deps.Settings == nil {
		deps.Settings = NewSettings(game.Diamond)
	}
	if deps.Summarizer == nil {
		deps.Summarizer = score.NewSummarizer(nil, nil, nil, deps.Log)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	publishCtx, cancelPublish := context.WithCancel(context.Background())
	s := &Session{
		sched:         deps.Scheduler,
		det:           deps.Detector,
		haptics:       deps.Haptics,
		summarizer:    deps.Summarizer,
		settings:      deps.Settings,
		log:           deps.Log,
		opts:          opts,
		clock:         clock.New(deps.Scheduler, opts.Policy),
		evaluator:     newEvaluator(opts.StaleAfter),
		ops:           make(chan func(), 32),
		opsDone:       make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		publishCtx:    publishCtx,
		cancelPublish: cancelPublish,
	}
	s.state.Mode = game.Setup
	s.state.Sequence = seq
	s.state.GridMode = deps.Settings.GridMode()
	s.state.resetPerformance()
	s.unsubscribe = deps.Settings.OnGridModeChanged(s.onGridModeChanged)

	go s.runOps()
	s.publish()
	return s
}

// Dispatch runs fn on the scheduler goroutine.
func (s *Session) Dispatch(fn func(*Session)) {
	s.sched.Post(func() { fn(s) })
}

// Snapshot copies the current state. Scheduler goroutine only.
func (s *Session) Snapshot() *Snapshot {
	return s.state.snapshot()
}

// Published returns the snapshot taken after the last state change. Safe
// from any goroutine.
func (s *Session) Published() *Snapshot {
	return s.published.Load()
}

func (s *Session) publish() {
	s.published.Store(s.state.snapshot())
}

func (s *Session) Mode() game.Mode { return s.state.Mode }

// Open initialises the detector in the background. Failures are reported
// through State.Error and the session stays in setup, ready for a retry.
func (s *Session) Open() {
	if s.closed {
		return
	}
	s.enqueue(func() {
		err := s.det.Initialize(s.ctx)
		s.sched.Post(func() { s.onInitialized(err) })
	})
}

func (s *Session) onInitialized(err error) {
	if s.closed {
		return
	}
	defer s.publish()
	if nil != err {
		s.detectorReady = false
		s.fail("Unable to start the position detector", err)
		return
	}
	s.detectorReady = true
	s.log.Debugf("detector initialised")
}

func (s *Session) AttachCamera(src detector.FrameSource) {
	defer s.publish()
	s.camera = src
	s.state.CameraReady = src != nil
}

// DetachCamera aborts a running performance, since nothing can be detected
// without frames.
func (s *Session) DetachCamera() {
	defer s.publish()
	if s.active() {
		s.abort()
		s.state.Error = "Camera disconnected"
	}
	s.camera = nil
	s.state.CameraReady = false
}

// Start leaves setup for the countdown or, without one, for performing.
func (s *Session) Start() error {
	defer s.publish()
	switch {
	case s.closed:
		return ErrClosed
	case s.state.Mode != game.Setup:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state.Mode)
	case s.state.Sequence == nil:
		return ErrNoSequence
	case !s.state.CameraReady:
		return ErrCameraNotReady
	case !s.detectorReady:
		return ErrDetectorNotReady
	}

	s.state.resetPerformance()
	s.evaluator.reset()
	s.summarized = false
	s.state.StartedAt = s.sched.Now()
	s.trigger(feedback.KindStart)

	if s.opts.Countdown > 0 {
		s.state.Mode = game.Countdown
		s.state.Countdown = s.opts.Countdown
		s.countdown = s.sched.After(time.Second, s.countdownTick)
		s.log.Infof("countdown from %d for %q", s.opts.Countdown, s.state.Sequence.ID)
		return nil
	}
	return s.perform()
}

func (s *Session) countdownTick() {
	defer s.publish()
	if s.state.Mode != game.Countdown {
		return
	}
	s.state.Countdown--
	if s.state.Countdown > 0 {
		s.trigger(feedback.KindCountdown)
		s.countdown = s.sched.After(time.Second, s.countdownTick)
		return
	}
	if err := s.perform(); nil != err {
		s.log.Errorf("unable to perform: %v", err)
	}
}

func (s *Session) perform() error {
	seq := s.state.Sequence
	s.state.Mode = game.Performing
	s.state.StartedAt = s.sched.Now()

	h, err := s.clock.Start(seq.BPM, s.onTick)
	if errors.Is(err, clock.ErrRunning) {
		panic("session: clock running outside of performing")
	}
	if nil != err {
		s.toSetup()
		s.fail(fmt.Sprintf("Sequence %q cannot be played", seq.Name), err)
		return err
	}
	s.beat = h
	s.startDetector()
	s.log.Infof("performing %q: %d beats at %v bpm", seq.ID, seq.TotalBeats(), seq.BPM)

	if seq.TotalBeats() == 0 {
		s.complete()
	}
	return nil
}

func (s *Session) onTick(t clock.Tick) {
	if s.state.Mode != game.Performing {
		return
	}
	defer s.publish()

	if t.NewBeat {
		s.state.BeatIndex = t.Beat
	}
	if j, ok := s.evaluator.evaluate(&s.state, t.Now); ok {
		s.log.Debugf("beat %d: hit=%v blue=%v red=%v score=%d combo=%d",
			s.state.BeatIndex, j.Hit, j.Blue, j.Red, s.state.Tally.Score, s.state.Tally.Combo)
	}
	if t.NewBeat && s.state.BeatIndex >= s.state.Sequence.TotalBeats()-1 {
		s.complete()
	}
}

// complete is the natural end of a performance.
func (s *Session) complete() {
	s.halt()
	s.state.Mode = game.Review
	s.trigger(feedback.KindComplete)
	s.summarize()
}

func (s *Session) summarize() {
	if s.summarized {
		return
	}
	s.summarized = true

	r := s.summarizer.Summarize(score.Summary{
		Sequence:  s.state.Sequence,
		Tally:     s.state.Tally,
		GridMode:  s.state.GridMode,
		Timed:     s.opts.Timed,
		StartedAt: s.state.StartedAt,
		EndedAt:   s.sched.Now(),
	})
	s.state.Result = &r
	s.log.Infof("session %s finished: %.1f%% %s, score %d, max combo %d",
		r.ID, r.Accuracy, r.Grade, r.Score, r.MaxCombo)
	s.summarizer.PublishAsync(s.publishCtx, r)
}

// Stop aborts a countdown or performance and discards its score. Outside
// of those modes it does nothing.
func (s *Session) Stop() {
	defer s.publish()
	if !s.active() {
		return
	}
	s.abort()
}

func (s *Session) abort() {
	s.halt()
	s.toSetup()
	s.trigger(feedback.KindStop)
	s.log.Infof("performance aborted")
}

// PlayAgain leaves review and immediately starts the same sequence again.
func (s *Session) PlayAgain() error {
	if err := s.Exit(); nil != err {
		return err
	}
	return s.Start()
}

// Exit leaves review for setup, resetting every counter.
func (s *Session) Exit() error {
	defer s.publish()
	if s.state.Mode != game.Review {
		return fmt.Errorf("%w: exit from %s", ErrInvalidTransition, s.state.Mode)
	}
	s.toSetup()
	return nil
}

// SetSequence swaps the sequence, abandoning whatever was in progress.
func (s *Session) SetSequence(seq *game.Sequence) {
	defer s.publish()
	if s.active() {
		s.abort()
	}
	s.toSetup()
	s.state.Sequence = seq
}

// SetGridMode updates the shared settings; the session reacts through its
// subscription like any other component.
func (s *Session) SetGridMode(mode game.GridMode) {
	s.settings.SetGridMode(mode)
}

func (s *Session) ClearError() {
	defer s.publish()
	s.state.Error = ""
}

// Close tears the session down: detector calls still in flight are
// cancelled, everything stops, the detector is disposed and pending
// summaries are flushed.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.cancel()
	s.halt()
	s.unsubscribe()
	det := s.det
	s.enqueue(func() { det.Dispose() })
	s.closed = true
	close(s.ops)
	<-s.opsDone
	s.summarizer.Wait()
	s.cancelPublish()
	s.publish()
}

func (s *Session) active() bool {
	return s.state.Mode == game.Countdown || s.state.Mode == game.Performing
}

// halt stops the clock, the countdown and the detector.
func (s *Session) halt() {
	s.clock.Stop(s.beat)
	s.beat = nil
	s.sched.Cancel(s.countdown)
	s.stopDetector()
}

func (s *Session) toSetup() {
	s.state.Mode = game.Setup
	s.state.resetPerformance()
	s.evaluator.reset()
	s.summarized = false
}

func (s *Session) fail(message string, err error) {
	s.state.Error = message
	s.log.Errorf("%s: %v", message, err)
}

func (s *Session) trigger(kind feedback.Kind) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Warnf("feedback %s failed: %v", kind, p)
		}
	}()
	s.haptics.Trigger(kind)
}

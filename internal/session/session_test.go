package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/detector"
	"git.lost.host/meutraa/flowtrain/internal/feedback"
	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/log"
	"git.lost.host/meutraa/flowtrain/internal/loop"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

const frame = 16 * time.Millisecond

type fakeDetector struct {
	mu       sync.Mutex
	initErr  error
	startErr error
	calls    []string
	onSample func(game.Sample)
	opts     detector.Options

	// initUntilDone makes Initialize return only once ctx is cancelled.
	initUntilDone bool
}

func (f *fakeDetector) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.calls = append(f.calls, "init")
	wait := f.initUntilDone
	f.mu.Unlock()
	if wait {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.initErr
}

func (f *fakeDetector) StartRealTimeDetection(_ context.Context, _ detector.FrameSource, onSample func(game.Sample), opts detector.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if nil != f.startErr {
		return f.startErr
	}
	f.onSample = onSample
	f.opts = opts
	return nil
}

func (f *fakeDetector) StopDetection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	f.onSample = nil
}

func (f *fakeDetector) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "dispose")
}

func (f *fakeDetector) emit(s game.Sample) {
	f.mu.Lock()
	fn := f.onSample
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeDetector) fail(err error) {
	f.mu.Lock()
	onError := f.opts.OnError
	f.onSample = nil
	f.mu.Unlock()
	onError(err)
}

func (f *fakeDetector) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type countingHistory struct {
	mu    sync.Mutex
	saved []score.Result
}

func (h *countingHistory) SavePerformance(_ context.Context, r score.Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, r)
	return nil
}

type fixture struct {
	s        *Session
	m        *loop.Manual
	det      *fakeDetector
	haptics  *feedback.Recorder
	history  *countingHistory
	settings *Settings
}

func newFixture(t *testing.T, seq *game.Sequence, opts Options, det *fakeDetector) *fixture {
	t.Helper()
	if det == nil {
		det = &fakeDetector{}
	}
	f := &fixture{
		m:        loop.NewManual(time.Unix(1000, 0)),
		det:      det,
		haptics:  &feedback.Recorder{},
		history:  &countingHistory{},
		settings: NewSettings(game.Diamond),
	}
	f.s = New(seq, Deps{
		Scheduler:  f.m,
		Detector:   det,
		Haptics:    f.haptics,
		Summarizer: score.NewSummarizer(f.history, nil, nil, log.Discard()),
		Settings:   f.settings,
		Log:        log.Discard(),
	}, opts)
	t.Cleanup(f.s.Close)

	f.s.AttachCamera(detector.Source("test"))
	f.s.Open()
	f.settle()
	return f
}

// settle waits for queued detector calls and runs whatever they posted back.
func (f *fixture) settle() {
	f.s.flushOps()
	f.m.Flush()
}

// runToBeat steps frames until the clock has reached beat.
func (f *fixture) runToBeat(t *testing.T, beat int) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if f.s.state.BeatIndex >= beat || f.s.state.Mode != game.Performing {
			return
		}
		f.m.Step(frame)
	}
	t.Fatalf("beat %d never reached, at %d", beat, f.s.state.BeatIndex)
}

func positions(blue, red game.Quadrant) game.ExpectedPositions {
	return game.ExpectedPositions{Blue: game.Q(blue), Red: game.Q(red)}
}

func sampleFor(e game.ExpectedPositions) game.Sample {
	s := game.Sample{}
	if e.Blue != nil {
		s.Blue = game.At(*e.Blue)
	}
	if e.Red != nil {
		s.Red = game.At(*e.Red)
	}
	return s
}

func fourBeats() *game.Sequence {
	return &game.Sequence{
		ID:  "basics",
		BPM: 120,
		Beats: []game.Beat{
			{Expected: positions(game.N, game.S)},
			{Expected: positions(game.E, game.W)},
			{Expected: positions(game.N, game.S)},
			{Expected: positions(game.W, game.E)},
		},
	}
}

func longSequence(beats int) *game.Sequence {
	seq := &game.Sequence{ID: "long", BPM: 120}
	for i := 0; i < beats; i++ {
		seq.Beats = append(seq.Beats, game.Beat{Expected: positions(game.N, game.S)})
	}
	return seq
}

func TestFullSession(t *testing.T) {
	seq := fourBeats()
	f := newFixture(t, seq, Options{}, nil)

	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	if f.s.Mode() != game.Performing || !f.s.state.DetectionActive {
		t.Fatalf("expected performing with detection, got %s %v", f.s.Mode(), f.s.state.DetectionActive)
	}

	for beat := 0; beat < 4; beat++ {
		want := seq.Beats[beat].Expected
		if beat == 2 {
			want = positions(game.E, game.S)
		}
		f.det.emit(sampleFor(want))
		f.runToBeat(t, beat)
	}

	if f.s.Mode() != game.Review {
		t.Fatalf("expected review, got %s", f.s.Mode())
	}
	tally := f.s.state.Tally
	if tally.Score != 310 || tally.MaxCombo != 2 || tally.Hits != 3 || tally.Misses != 1 {
		t.Fatalf("unexpected tally %+v", tally)
	}
	r := f.s.state.Result
	if r == nil || r.Accuracy != 75 || r.Grade != score.GradeB {
		t.Fatalf("unexpected result %+v", r)
	}
	if f.s.clock.Running() || f.s.detecting {
		t.Fatal("clock or detector still running in review")
	}

	f.s.Close()
	if len(f.history.saved) != 1 || f.history.saved[0].Score != 310 {
		t.Fatalf("expected one saved result, got %+v", f.history.saved)
	}
	if got := f.haptics.Kinds; len(got) != 2 || got[0] != feedback.KindStart || got[1] != feedback.KindComplete {
		t.Fatalf("unexpected cues %v", got)
	}
	if f.det.count("start") != 1 || f.det.count("stop") != 1 || f.det.count("dispose") != 1 {
		t.Fatalf("unexpected detector calls %v", f.det.calls)
	}
}

func TestBeatJudgedAtMostOnce(t *testing.T) {
	seq := longSequence(8)
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	f.det.emit(sampleFor(seq.Beats[0].Expected))
	f.runToBeat(t, 0)
	if f.s.state.Tally.Hits != 1 {
		t.Fatalf("expected beat 0 hit, got %+v", f.s.state.Tally)
	}

	for i := 0; i < 10; i++ {
		f.det.emit(game.Sample{})
		f.m.Step(frame)
	}
	if f.s.state.BeatIndex != 0 {
		t.Fatalf("test ran into beat %d", f.s.state.BeatIndex)
	}
	if tally := f.s.state.Tally; tally.Hits != 1 || tally.Misses != 0 {
		t.Fatalf("beat judged twice: %+v", tally)
	}
}

func TestNoSampleNoJudgement(t *testing.T) {
	f := newFixture(t, longSequence(8), Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	f.runToBeat(t, 1)
	if tally := f.s.state.Tally; tally.Hits+tally.Misses != 0 {
		t.Fatalf("judged without a sample: %+v", tally)
	}
}

func TestCountdown(t *testing.T) {
	f := newFixture(t, longSequence(4), Options{Countdown: 3}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	if f.s.Mode() != game.Countdown || f.s.state.Countdown != 3 {
		t.Fatalf("expected countdown from 3, got %s %d", f.s.Mode(), f.s.state.Countdown)
	}

	f.m.Step(time.Second)
	f.m.Step(time.Second)
	f.settle()
	if f.s.Mode() != game.Countdown || f.s.state.Countdown != 1 {
		t.Fatalf("expected countdown at 1, got %s %d", f.s.Mode(), f.s.state.Countdown)
	}
	if f.s.clock.Running() || f.det.count("start") != 0 {
		t.Fatal("clock or detector started during countdown")
	}

	f.m.Step(time.Second)
	f.settle()
	if f.s.Mode() != game.Performing || f.det.count("start") != 1 {
		t.Fatalf("expected performing, got %s", f.s.Mode())
	}
	want := []feedback.Kind{feedback.KindStart, feedback.KindCountdown, feedback.KindCountdown}
	if len(f.haptics.Kinds) != len(want) {
		t.Fatalf("expected cues %v, got %v", want, f.haptics.Kinds)
	}
}

func TestStopDuringCountdown(t *testing.T) {
	f := newFixture(t, longSequence(4), Options{Countdown: 3}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.s.Stop()
	f.m.Run(5, time.Second)
	f.settle()
	if f.s.Mode() != game.Setup || f.det.count("start") != 0 {
		t.Fatalf("countdown survived stop: %s", f.s.Mode())
	}
}

func TestStopDiscardsAndIsIdempotent(t *testing.T) {
	seq := longSequence(8)
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	f.det.emit(sampleFor(seq.Beats[0].Expected))
	f.runToBeat(t, 0)

	f.s.Stop()
	f.s.Stop()
	f.settle()
	if f.s.Mode() != game.Setup {
		t.Fatalf("expected setup, got %s", f.s.Mode())
	}
	if f.s.state.Tally != (score.Tally{}) || f.s.state.BeatIndex != -1 || f.s.state.Result != nil {
		t.Fatalf("performance not discarded: %+v", f.s.state)
	}
	if f.det.count("stop") != 1 {
		t.Fatalf("expected one stop, got %v", f.det.calls)
	}

	f.m.Run(100, frame)
	if f.s.clock.Running() || f.s.state.BeatIndex != -1 {
		t.Fatal("clock ticked after stop")
	}
	f.s.Close()
	if len(f.history.saved) != 0 {
		t.Fatal("aborted session was summarised")
	}
}

func TestStartGuards(t *testing.T) {
	f := newFixture(t, longSequence(4), Options{}, &fakeDetector{initErr: &detector.InitError{Cause: errors.New("no camera")}})
	if f.s.state.Error == "" {
		t.Fatal("initialisation failure not reported")
	}
	if err := f.s.Start(); !errors.Is(err, ErrDetectorNotReady) {
		t.Fatalf("expected ErrDetectorNotReady, got %v", err)
	}
	if f.s.Mode() != game.Setup {
		t.Fatalf("expected setup, got %s", f.s.Mode())
	}

	f.det.mu.Lock()
	f.det.initErr = nil
	f.det.mu.Unlock()
	f.s.ClearError()
	f.s.Open()
	f.settle()

	f.s.DetachCamera()
	if err := f.s.Start(); !errors.Is(err, ErrCameraNotReady) {
		t.Fatalf("expected ErrCameraNotReady, got %v", err)
	}
	f.s.AttachCamera(detector.Source("test"))
	if err := f.s.Start(); nil != err {
		t.Fatalf("expected start after retry, got %v", err)
	}
	if err := f.s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestInvalidTempo(t *testing.T) {
	seq := longSequence(4)
	seq.BPM = 0
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.Start(); nil == err {
		t.Fatal("expected an error for a zero tempo")
	}
	if f.s.Mode() != game.Setup || f.s.state.Error == "" {
		t.Fatalf("expected setup with an error, got %s %q", f.s.Mode(), f.s.state.Error)
	}
}

func TestEmptySequenceCompletesImmediately(t *testing.T) {
	f := newFixture(t, &game.Sequence{ID: "empty", BPM: 100}, Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	if f.s.Mode() != game.Review || f.s.state.Result == nil || f.s.state.Result.Grade != score.GradeF {
		t.Fatalf("expected an immediate review, got %s %+v", f.s.Mode(), f.s.state.Result)
	}
}

func TestGridModeRestartsDetectorOnce(t *testing.T) {
	f := newFixture(t, longSequence(32), Options{Debounce: 100 * time.Millisecond}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	f.s.SetGridMode(game.Box)
	f.m.Step(frame)
	f.s.SetGridMode(game.Diamond)
	f.m.Step(frame)
	f.s.SetGridMode(game.Box)
	f.settle()
	if f.det.count("stop") != 1 || f.det.count("start") != 1 {
		t.Fatalf("expected a single stop before the debounce, got %v", f.det.calls)
	}

	f.m.Run(10, frame)
	f.settle()
	if f.det.count("start") != 2 || f.det.count("stop") != 1 {
		t.Fatalf("expected one restart, got %v", f.det.calls)
	}
	if f.det.opts.GridMode != game.Box || !f.s.state.DetectionActive {
		t.Fatalf("restarted with %s", f.det.opts.GridMode)
	}
}

func TestGridModeRestartKeepsLastSample(t *testing.T) {
	seq := longSequence(8)
	f := newFixture(t, seq, Options{Debounce: 600 * time.Millisecond}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	f.det.emit(sampleFor(seq.Beats[0].Expected))
	f.runToBeat(t, 0)
	f.s.SetGridMode(game.Box)
	f.settle()
	if f.s.state.DetectionActive || !f.s.state.Holding {
		t.Fatal("expected the last sample held while the detector restarts")
	}

	f.runToBeat(t, 1)
	if f.det.count("start") != 1 {
		t.Fatalf("beat 1 should fall inside the debounce window, got %v", f.det.calls)
	}
	if tally := f.s.state.Tally; tally.Hits != 2 || tally.Misses != 0 {
		t.Fatalf("held sample should still hit, got %+v", tally)
	}

	f.m.Run(10, frame)
	f.settle()
	f.det.emit(sampleFor(seq.Beats[2].Expected))
	f.m.Step(frame)
	if !f.s.state.DetectionActive || f.s.state.Holding {
		t.Fatal("a fresh sample should end the hold")
	}
}

func TestGridModeOutsidePerforming(t *testing.T) {
	f := newFixture(t, longSequence(4), Options{}, nil)
	f.s.SetGridMode(game.Box)
	f.m.Run(20, frame)
	f.settle()
	if f.s.state.GridMode != game.Box || f.det.count("start") != 0 {
		t.Fatalf("unexpected detector calls %v", f.det.calls)
	}
}

func TestStaleSamplesAfterDetectorFailure(t *testing.T) {
	seq := longSequence(8)
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	f.det.emit(sampleFor(seq.Beats[0].Expected))
	f.runToBeat(t, 0)
	f.det.fail(errors.New("camera unplugged"))
	f.settle()
	if f.s.state.DetectionActive || f.s.state.Error == "" {
		t.Fatal("detector failure not reported")
	}

	f.runToBeat(t, 1)
	if tally := f.s.state.Tally; tally.Hits != 1 || tally.Misses != 1 {
		t.Fatalf("stale sample should miss, got %+v", tally)
	}
	if f.s.Mode() != game.Performing {
		t.Fatalf("performance should continue, got %s", f.s.Mode())
	}
}

func TestStaleAfterAge(t *testing.T) {
	seq := longSequence(8)
	f := newFixture(t, seq, Options{StaleAfter: 200 * time.Millisecond}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	f.det.emit(sampleFor(seq.Beats[0].Expected))
	f.m.Step(frame)
	f.runToBeat(t, 0)
	if tally := f.s.state.Tally; tally.Misses != 1 {
		t.Fatalf("old sample should miss, got %+v", tally)
	}
}

func TestPlayAgainAndExit(t *testing.T) {
	seq := fourBeats()
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.PlayAgain(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	f.runToBeat(t, 3)
	if f.s.Mode() != game.Review {
		t.Fatalf("expected review, got %s", f.s.Mode())
	}

	if err := f.s.PlayAgain(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	if f.s.Mode() != game.Performing || f.s.state.Result != nil || f.s.state.BeatIndex != -1 {
		t.Fatalf("play again did not reset: %s %+v", f.s.Mode(), f.s.state.Result)
	}
	f.runToBeat(t, 3)
	if err := f.s.Exit(); nil != err {
		t.Fatal(err)
	}
	if f.s.Mode() != game.Setup {
		t.Fatalf("expected setup, got %s", f.s.Mode())
	}

	f.s.Close()
	if len(f.history.saved) != 2 {
		t.Fatalf("expected two results, got %d", len(f.history.saved))
	}
}

func TestSetSequenceAborts(t *testing.T) {
	f := newFixture(t, longSequence(8), Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()
	f.runToBeat(t, 1)

	next := fourBeats()
	f.s.SetSequence(next)
	f.settle()
	if f.s.Mode() != game.Setup || f.s.state.Sequence != next || f.s.clock.Running() {
		t.Fatalf("sequence swap did not abort: %s", f.s.Mode())
	}
}

func TestPublishedSnapshot(t *testing.T) {
	seq := fourBeats()
	seq.Start = &game.ExpectedPositions{Blue: game.Q(game.W), Red: game.Q(game.E)}
	f := newFixture(t, seq, Options{}, nil)
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	f.settle()

	snap := f.s.Published()
	if snap.Mode != game.Performing || snap.Beat != -1 || *snap.Expected.Blue != game.W {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	beat, target := snap.Target()
	if beat != 0 || *target.Blue != game.N {
		t.Fatalf("expected beat 0 as the target, got %d", beat)
	}

	f.runToBeat(t, 0)
	if snap := f.s.Published(); snap.Beat != 0 || snap.Upcoming == nil || *snap.Upcoming.Blue != game.E {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, fourBeats(), Options{}, nil)
	done := make(chan error, 1)
	go f.s.Dispatch(func(s *Session) { done <- s.Start() })

	for i := 0; i < 1000 && f.s.Mode() == game.Setup; i++ {
		time.Sleep(time.Millisecond)
		f.m.Flush()
	}
	if err := <-done; nil != err {
		t.Fatal(err)
	}
}

func TestHapticsPanicIsContained(t *testing.T) {
	f := newFixture(t, fourBeats(), Options{}, nil)
	f.s.haptics = panicky{}
	if err := f.s.Start(); nil != err {
		t.Fatal(err)
	}
	if f.s.Mode() != game.Performing {
		t.Fatalf("expected performing, got %s", f.s.Mode())
	}
}

type panicky struct{}

func (panicky) Trigger(feedback.Kind) { panic("no vibration motor") }

func TestCloseCancelsDetectorCalls(t *testing.T) {
	det := &fakeDetector{initUntilDone: true}
	s := New(fourBeats(), Deps{
		Scheduler: loop.NewManual(time.Unix(1000, 0)),
		Detector:  det,
		Log:       log.Discard(),
	}, Options{})
	s.AttachCamera(detector.Source("test"))
	s.Open()

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a detector waiting for cancellation")
	}
	if det.count("init") != 1 || det.count("dispose") != 1 {
		t.Fatalf("unexpected detector calls %v", det.calls)
	}
}

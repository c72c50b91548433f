package detector

import (
	"context"
	"errors"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

// Follower is a scripted performer: it reports exactly the positions its
// target asks for, except on every MissEvery-th beat where the blue hand is
// one location off. It powers the dry-run demo and soak tests.
type Follower struct {
	sampler

	// Target returns the beat being prepared and its expected positions.
	Target    func() (beat int, want game.ExpectedPositions)
	MissEvery int
	// FailAfter stops detection with an error after this many samples, 0
	// never fails.
	FailAfter int

	initialized bool
	produced    int
}

var ErrFollowerFailed = errors.New("follower stopped producing samples")

func NewFollower(period time.Duration, target func() (int, game.ExpectedPositions)) *Follower {
	return &Follower{sampler: sampler{period: period}, Target: target}
}

func (f *Follower) Initialize(context.Context) error {
	if f.Target == nil {
		return &InitError{Cause: errors.New("no target to follow")}
	}
	f.initialized = true
	return nil
}

func (f *Follower) StartRealTimeDetection(ctx context.Context, _ FrameSource, onSample func(game.Sample), opts Options) error {
	if !f.initialized {
		return ErrNotInitialized
	}
	f.produced = 0
	return f.start(ctx, f.sample, onSample, opts.OnError)
}

func (f *Follower) sample() (game.Sample, error) {
	f.produced++
	if f.FailAfter > 0 && f.produced > f.FailAfter {
		return game.Sample{}, ErrFollowerFailed
	}

	beat, want := f.Target()
	s := game.Sample{}
	if want.Blue != nil {
		s.Blue = game.At(*want.Blue)
	}
	if want.Red != nil {
		s.Red = game.At(*want.Red)
	}
	if f.MissEvery > 0 && beat >= 0 && beat%f.MissEvery == f.MissEvery-1 {
		s.Blue = game.At(nextLocation(s.Blue))
	}
	return s, nil
}

func (f *Follower) StopDetection() { f.stop() }

func (f *Follower) Dispose() {
	f.stop()
	f.initialized = false
}

// nextLocation moves clockwise to the next location of the same grid mode.
func nextLocation(d *game.Detection) game.Quadrant {
	if d == nil {
		return game.N
	}
	return game.Quadrant((uint8(d.Quadrant)+1)%8 + 1)
}

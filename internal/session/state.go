package session

import (
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

// State is the single mutable aggregate of a training session. Each field
// has one writer:
//
//	Mode, Countdown, StartedAt, Result   state machine
//	BeatIndex                            clock
//	Frame, FrameAt, Holding              detector callback
//	Tally, Last                          hit evaluator
type State struct {
	Mode      game.Mode
	Sequence  *game.Sequence
	GridMode  game.GridMode
	BeatIndex int

	CameraReady     bool
	DetectionActive bool

	// Frame is the most recent detector sample, never a queue.
	Frame   *game.Sample
	FrameAt time.Time
	// Holding keeps Frame valid while the detector restarts for a grid
	// mode change, until the restarted detector delivers a sample.
	Holding bool

	Tally score.Tally
	Last  *score.Judgement

	Countdown int
	StartedAt time.Time
	Result    *score.Result

	// Error is a user-facing message, cleared only by the user.
	Error string
}

func (st *State) resetPerformance() {
	st.BeatIndex = -1
	st.Frame = nil
	st.FrameAt = time.Time{}
	st.Holding = false
	st.Tally = score.Tally{}
	st.Last = nil
	st.Countdown = 0
	st.StartedAt = time.Time{}
	st.Result = nil
}

// Snapshot is a read-only copy of State with the expected positions of the
// current and next beat resolved.
type Snapshot struct {
	Mode         game.Mode
	SequenceID   string
	SequenceName string
	BPM          float64
	TotalBeats   int
	Beat         int
	GridMode     game.GridMode

	Expected game.ExpectedPositions
	Upcoming *game.ExpectedPositions

	CameraReady     bool
	DetectionActive bool
	Frame           *game.Sample

	Tally     score.Tally
	Last      *score.Judgement
	Countdown int
	Result    *score.Result
	Error     string
}

func (st *State) snapshot() *Snapshot {
	snap := &Snapshot{
		Mode:            st.Mode,
		Beat:            st.BeatIndex,
		GridMode:        st.GridMode,
		CameraReady:     st.CameraReady,
		DetectionActive: st.DetectionActive,
		Tally:           st.Tally,
		Countdown:       st.Countdown,
		Result:          st.Result,
		Error:           st.Error,
	}
	if st.Frame != nil {
		frame := *st.Frame
		snap.Frame = &frame
	}
	if st.Last != nil {
		last := *st.Last
		snap.Last = &last
	}

	seq := st.Sequence
	if seq == nil {
		return snap
	}
	snap.SequenceID = seq.ID
	snap.SequenceName = seq.Name
	snap.BPM = seq.BPM
	snap.TotalBeats = seq.TotalBeats()
	if st.BeatIndex < snap.TotalBeats {
		snap.Expected = seq.Expected(st.BeatIndex)
	}
	if next := st.BeatIndex + 1; next < snap.TotalBeats {
		upcoming := seq.Expected(next)
		snap.Upcoming = &upcoming
	}
	return snap
}

// Target is what a performer should be showing right now: the next beat's
// positions, since a beat is judged on the frame that reaches it.
func (s *Snapshot) Target() (int, game.ExpectedPositions) {
	if s.Upcoming != nil {
		return s.Beat + 1, *s.Upcoming
	}
	return s.Beat, s.Expected
}

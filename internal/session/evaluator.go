package session

import (
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

// evaluator judges each beat at most once. Detector samples and clock ticks
// arrive in no particular order, so the guard on the last evaluated beat is
// what keeps a late sample or a repeated tick from scoring a beat twice.
type evaluator struct {
	staleAfter time.Duration
	evaluated  int
}

func newEvaluator(staleAfter time.Duration) *evaluator {
	return &evaluator{staleAfter: staleAfter, evaluated: -1}
}

func (e *evaluator) reset() {
	e.evaluated = -1
}

// pending reports whether the current beat still needs a judgement.
func (e *evaluator) pending(st *State) bool {
	return st.Mode == game.Performing && st.BeatIndex >= 0 && st.BeatIndex > e.evaluated
}

// evaluate runs on every clock tick. It returns false when there was nothing
// to judge: the beat was already judged or no sample has arrived yet.
func (e *evaluator) evaluate(st *State, now time.Time) (score.Judgement, bool) {
	if !e.pending(st) || st.Frame == nil || st.Sequence == nil {
		return score.Judgement{}, false
	}

	expected := st.Sequence.Expected(st.BeatIndex)
	sample := *st.Frame
	if e.stale(st, now) {
		sample = game.Sample{}
	}

	j := score.Judge(expected, sample)
	st.Tally.Apply(j)
	st.Last = &j
	e.evaluated = st.BeatIndex
	return j, true
}

// stale samples count as nothing detected for both hands. A held sample
// is still subject to the age limit.
func (e *evaluator) stale(st *State, now time.Time) bool {
	if !st.DetectionActive && !st.Holding {
		return true
	}
	return e.staleAfter > 0 && now.Sub(st.FrameAt) > e.staleAfter
}

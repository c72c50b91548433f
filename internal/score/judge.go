package score

import (
	"math"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

// Judgement is the outcome of comparing one sample against one beat.
type Judgement struct {
	Blue bool
	Red  bool
	Hit  bool
}

// Correct reports whether a single hand matches its target. A hand expected
// to be absent must be observed absent.
func Correct(expected *game.Quadrant, detected *game.Detection) bool {
	if expected == nil {
		return detected == nil
	}
	return detected != nil && detected.Quadrant == *expected
}

// Judge requires both hands to match independently.
func Judge(expected game.ExpectedPositions, sample game.Sample) Judgement {
	j := Judgement{
		Blue: Correct(expected.Blue, sample.Blue),
		Red:  Correct(expected.Red, sample.Red),
	}
	j.Hit = j.Blue && j.Red
	return j
}

// Points awarded for a hit made with combo consecutive hits behind it.
// The multiplier is evaluated in float64, so some combos land one point
// below 100 + 10*combo (combo 13 is worth 229).
func Points(combo int) int {
	return int(math.Floor(100 * (1 + float64(combo)*0.1)))
}

// Tally accumulates score and combo across the beats of one session.
type Tally struct {
	Score    int
	Combo    int
	MaxCombo int
	Hits     int
	Misses   int
}

// Hit records a hit and returns the points it was worth. Points are
// computed from the combo before this hit.
func (t *Tally) Hit() int {
	points := Points(t.Combo)
	t.Score += points
	t.Combo++
	if t.Combo > t.MaxCombo {
		t.MaxCombo = t.Combo
	}
	t.Hits++
	return points
}

func (t *Tally) Miss() {
	t.Combo = 0
	t.Misses++
}

// Apply records j and returns the points awarded.
func (t *Tally) Apply(j Judgement) int {
	if j.Hit {
		return t.Hit()
	}
	t.Miss()
	return 0
}

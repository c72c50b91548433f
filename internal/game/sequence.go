package game

import "fmt"

// ExpectedPositions is the target for one beat. A nil hand is expected to be
// absent from the grid.
type ExpectedPositions struct {
	Blue *Quadrant
	Red  *Quadrant
}

// For returns the expected quadrant of a hand.
func (e ExpectedPositions) For(h Hand) *Quadrant {
	if h == Red {
		return e.Red
	}
	return e.Blue
}

type Beat struct {
	Expected ExpectedPositions
}

// Sequence is a choreographed list of beats performed at a fixed tempo.
type Sequence struct {
	ID    string
	Name  string
	BPM   float64
	Start *ExpectedPositions // Start position, may be nil
	Beats []Beat
}

func (s *Sequence) TotalBeats() int {
	if s == nil {
		return 0
	}
	return len(s.Beats)
}

// Expected resolves the target for a beat index. Index -1 is the start
// position. Any other index outside the sequence is a caller bug and panics.
func (s *Sequence) Expected(beat int) ExpectedPositions {
	if beat == -1 {
		if s.Start == nil {
			return ExpectedPositions{}
		}
		return *s.Start
	}
	if beat < 0 || beat >= len(s.Beats) {
		panic(fmt.Sprintf("game: beat %d out of range for sequence %q with %d beats", beat, s.ID, len(s.Beats)))
	}
	return s.Beats[beat].Expected
}

// Q returns a pointer to q, for building expected positions inline.
func Q(q Quadrant) *Quadrant {
	return &q
}

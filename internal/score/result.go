package score

import (
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

// Result is the final record of one completed session. It is built once on
// entry to review and never modified.
type Result struct {
	ID           string
	SequenceID   string
	SequenceName string
	BPM          float64
	GridMode     game.GridMode
	Timed        bool

	TotalBeats int
	Hits       int
	Misses     int
	Score      int
	MaxCombo   int
	Accuracy   float64
	Grade      Grade
	XP         XP

	StartedAt time.Time
	Duration  time.Duration
}

// Perfect reports a session where every beat was hit.
func (r Result) Perfect() bool {
	return r.TotalBeats > 0 && r.Hits == r.TotalBeats
}

package score

import "math"

type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

var gradeThresholds = []struct {
	Min   float64
	Grade Grade
}{
	{95, GradeS},
	{85, GradeA},
	{70, GradeB},
	{55, GradeC},
	{40, GradeD},
}

// Accuracy is the percentage of beats hit, 0 for an empty sequence.
func Accuracy(hits, totalBeats int) float64 {
	if totalBeats <= 0 {
		return 0
	}
	return float64(hits) / float64(totalBeats) * 100
}

func GradeFor(accuracy float64) Grade {
	for _, t := range gradeThresholds {
		if accuracy >= t.Min {
			return t.Grade
		}
	}
	return GradeF
}

const (
	BaseXP           = 50
	ComboXPPerBeat   = 5
	PerfectAccuracy  = 100.0
	ComboAchievement = 20
	SpeedAchievement = 150.0
)

// XP is the experience awarded for a session, broken down by source.
type XP struct {
	Base     int
	Accuracy int
	Combo    int
}

func (x XP) Total() int {
	return x.Base + x.Accuracy + x.Combo
}

func XPFor(accuracy float64, maxCombo int) XP {
	return XP{
		Base:     BaseXP,
		Accuracy: int(math.Round(accuracy)),
		Combo:    maxCombo * ComboXPPerBeat,
	}
}

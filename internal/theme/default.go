package theme

import (
	"fmt"
	"image/color"

	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

type DefaultTheme struct {
}

func (t *DefaultTheme) RenderHand(hand game.Hand) string {
	return paint(handColors[hand], handSym)
}

func (t *DefaultTheme) RenderTarget(hand game.Hand) string {
	return paint(handColors[hand], targetSym)
}

// RenderCell draws an empty grid location; inactive ones belong to the
// other grid mode.
func (t *DefaultTheme) RenderCell(active bool) string {
	if active {
		return cellSym
	}
	return paint(dim, cellSym)
}

func (t *DefaultTheme) RenderJudgement(j score.Judgement) string {
	if j.Hit {
		return "\033[1;32m HIT \033[0m"
	}
	return "\033[1;31mMISS \033[0m"
}

func (t *DefaultTheme) RenderGrade(g score.Grade) string {
	c, ok := gradeColors[g]
	if !ok {
		c = gradeColors[score.GradeF]
	}
	return paint(c, string(g))
}

const (
	handSym   = "⬤"
	targetSym = "◯"
	cellSym   = "·"
)

var (
	dim        = color.RGBA{R: 80, G: 80, B: 80}
	handColors = map[game.Hand]color.RGBA{
		game.Blue: {R: 0, G: 118, B: 236},
		game.Red:  {R: 236, G: 30, B: 0},
	}
	gradeColors = map[score.Grade]color.RGBA{
		score.GradeS: {R: 236, G: 195, B: 0},   // gold
		score.GradeA: {R: 0, G: 236, B: 128},   // green
		score.GradeB: {R: 173, G: 236, B: 236}, // light blue
		score.GradeC: {R: 106, G: 0, B: 236},   // purple
		score.GradeD: {R: 236, G: 128, B: 0},   // orange
		score.GradeF: {R: 236, G: 30, B: 0},    // red
	}
)

func paint(c color.RGBA, s string) string {
	return fmt.Sprintf("\033[38;2;%v;%v;%vm%v\033[0m", c.R, c.G, c.B, s)
}

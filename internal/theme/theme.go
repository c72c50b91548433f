package theme

import (
	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/score"
)

type Theme interface {
	RenderHand(hand game.Hand) string
	RenderTarget(hand game.Hand) string
	RenderCell(active bool) string
	RenderJudgement(j score.Judgement) string
	RenderGrade(g score.Grade) string
}

package parser

import "git.lost.host/meutraa/flowtrain/internal/game"

type Parser interface {
	Parse(file string) (*game.Sequence, error)
}

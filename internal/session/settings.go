package session

import "git.lost.host/meutraa/flowtrain/internal/game"

// Settings holds user preferences that outlive a single session and lets
// components subscribe to changes explicitly.
type Settings struct {
	gridMode game.GridMode
	next     int
	handlers []gridModeHandler
}

type gridModeHandler struct {
	id int
	fn func(game.GridMode)
}

func NewSettings(mode game.GridMode) *Settings {
	return &Settings{gridMode: mode}
}

func (s *Settings) GridMode() game.GridMode { return s.gridMode }

// SetGridMode notifies subscribers in subscription order. Setting the
// current mode again notifies nobody.
func (s *Settings) SetGridMode(mode game.GridMode) {
	if mode == s.gridMode {
		return
	}
	s.gridMode = mode
	for _, h := range append([]gridModeHandler(nil), s.handlers...) {
		h.fn(mode)
	}
}

// OnGridModeChanged registers fn and returns a function that removes it.
func (s *Settings) OnGridModeChanged(fn func(game.GridMode)) (unsubscribe func()) {
	s.next++
	id := s.next
	s.handlers = append(s.handlers, gridModeHandler{id: id, fn: fn})
	return func() {
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

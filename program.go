package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eiannone/keyboard"

	"git.lost.host/meutraa/flowtrain/internal/config"
	"git.lost.host/meutraa/flowtrain/internal/detector"
	"git.lost.host/meutraa/flowtrain/internal/feedback"
	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/log"
	"git.lost.host/meutraa/flowtrain/internal/loop"
	"git.lost.host/meutraa/flowtrain/internal/parser"
	"git.lost.host/meutraa/flowtrain/internal/render"
	"git.lost.host/meutraa/flowtrain/internal/score"
	"git.lost.host/meutraa/flowtrain/internal/session"
	"git.lost.host/meutraa/flowtrain/internal/storage"
	"git.lost.host/meutraa/flowtrain/internal/testdata"
	"git.lost.host/meutraa/flowtrain/internal/theme"
)

type Position struct {
	Row, Col int
}

// Grid offsets from the centre, in terminal cells.
var offsets = map[game.Quadrant]Position{
	game.N:  {-4, 0},
	game.NE: {-3, 9},
	game.E:  {0, 13},
	game.SE: {3, 9},
	game.S:  {4, 0},
	game.SW: {3, -9},
	game.W:  {0, -13},
	game.NW: {-3, -9},
}

const judgementFrames = 20

type Program struct {
	Config   *config.Config
	Log      *log.Logger
	Parser   *parser.DefaultParser
	Store    *storage.Store
	Theme    theme.Theme
	Renderer render.Renderer
	Loop     loop.Scheduler
	Settings *session.Settings
	Session  *session.Session

	// keys is nil when a scripted performer plays.
	keys *detector.Keyboard

	width, height int
	middle        Position
	sideCol       int

	judged   int
	lastMode game.Mode
	best     map[string]int
	notice   string
}

func (p *Program) Resize() {
	columns, rows, err := p.Renderer.Size()
	if nil != err {
		p.Log.Warnf("unable to get terminal size: %v", err)
		columns, rows = 80, 24
	}
	p.width, p.height = columns, rows
	p.middle = Position{Row: rows / 2, Col: columns / 2}

	p.sideCol = p.middle.Col - 44
	if p.sideCol < 2 {
		p.sideCol = 2
	}
}

func (p *Program) sequence() (*game.Sequence, error) {
	if p.Config.Sequence == "" {
		return p.Parser.ParseBytes(testdata.Basics, "basics")
	}
	return p.Parser.Parse(p.Config.Sequence)
}

// Init opens everything a session needs. sched must not be running yet.
func (p *Program) Init(ctx context.Context, sched loop.Scheduler) error {
	p.Parser = &parser.DefaultParser{}
	p.Theme = &theme.DefaultTheme{}
	p.Loop = sched
	p.best = map[string]int{}

	seq, err := p.sequence()
	if nil != err {
		return fmt.Errorf("unable to load sequence: %w", err)
	}

	p.Store, err = storage.Open(ctx, p.Config.Database)
	if nil != err {
		return fmt.Errorf("unable to open history: %w", err)
	}
	if p.Config.Challenge != "" {
		if err := p.Store.DefineChallenge(ctx, p.Config.Challenge, p.Config.Challenge, p.Config.ChallengeTarget); nil != err {
			return err
		}
	}
	if history, err := p.Store.History(ctx, seq.ID, 1); nil != err {
		p.Log.Warnf("unable to read history of %s: %v", seq.ID, err)
	} else if len(history) > 0 {
		p.best[seq.ID] = history[0].Score
	}

	summarizer := score.NewSummarizer(p.Store, p.Store, p.Store, p.Log)
	summarizer.ChallengeID = p.Config.Challenge

	var haptics feedback.Haptics = feedback.Nop{}
	if p.Config.Audio {
		haptics = feedback.NewBeep(p.Config.Volume, p.Log)
	}

	var det detector.PositionDetector
	source := detector.Source("keyboard")
	if p.Config.DryRun {
		follower := detector.NewFollower(detector.DefaultPeriod, p.target)
		follower.MissEvery = p.Config.MissEvery
		det, source = follower, detector.Source("script")
	} else {
		p.keys = detector.NewKeyboard(detector.DefaultPeriod)
		det = p.keys
	}

	p.Settings = session.NewSettings(p.Config.Grid())
	p.Session = session.New(seq, session.Deps{
		Scheduler:  sched,
		Detector:   det,
		Haptics:    haptics,
		Summarizer: summarizer,
		Settings:   p.Settings,
		Log:        p.Log,
	}, session.Options{
		Countdown:  p.Config.Countdown,
		StaleAfter: p.Config.StaleAfter,
		Debounce:   p.Config.Debounce,
		Mirror:     p.Config.Mirror,
		Policy:     p.Config.ClockPolicy(),
		Timed:      p.Config.Timed,
	})
	p.Session.AttachCamera(source)
	p.Session.Open()
	return nil
}

// target feeds the scripted performer. It runs on the detector goroutine.
func (p *Program) target() (int, game.ExpectedPositions) {
	snap := p.Session.Published()
	if snap == nil || snap.Mode != game.Performing {
		return -1, game.ExpectedPositions{}
	}
	return snap.Target()
}

func (p *Program) Deinit() {
	if nil != p.Session {
		p.Session.Close()
	}
	if nil != p.Store {
		if err := p.Store.Close(); nil != err {
			p.Log.Warnf("unable to close history: %v", err)
		}
	}
}

// Keys routes key presses until keys is closed: hand movement to the
// keyboard detector, commands to the session. cancel quits.
func (p *Program) Keys(keys <-chan keyboard.KeyEvent, cancel func()) {
	for ev := range keys {
		if nil != ev.Err {
			p.Log.Warnf("keyboard: %v", ev.Err)
			continue
		}
		if nil != p.keys && p.keys.Handle(ev) {
			continue
		}
		if ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC {
			cancel()
			return
		}
		p.Session.Dispatch(func(s *session.Session) { p.Command(s, ev) })
	}
}

// Command handles one command key on the scheduler goroutine.
func (p *Program) Command(s *session.Session, ev keyboard.KeyEvent) {
	var err error
	switch {
	case ev.Key == keyboard.KeySpace:
		switch s.Mode() {
		case game.Setup:
			err = s.Start()
		case game.Countdown, game.Performing:
			s.Stop()
		case game.Review:
			err = s.Exit()
		}
	case ev.Rune == 'g':
		s.SetGridMode(p.Settings.GridMode().Toggle())
	case ev.Rune == 'r':
		err = s.PlayAgain()
	case ev.Key == keyboard.KeyBackspace || ev.Key == keyboard.KeyBackspace2:
		s.ClearError()
		p.notice = ""
	default:
		return
	}

	switch {
	case nil == err:
		p.notice = ""
	case errors.Is(err, session.ErrInvalidTransition):
		p.Log.Debugf("ignored command: %v", err)
	default:
		p.notice = err.Error()
		p.Log.Warnf("command failed: %v", err)
	}
}

// Frame draws the current state and asks for the next frame.
func (p *Program) Frame(time.Time) {
	p.Draw(p.Session.Snapshot())
	if err := p.Renderer.Flush(); nil != err {
		p.Log.Errorf("unable to draw: %v", err)
	}
	p.Loop.RequestFrame(p.Frame)
}

func (p *Program) Draw(snap *session.Snapshot) {
	r, th := p.Renderer, p.Theme
	if snap.Mode != p.lastMode {
		r.Clear()
		p.lastMode = snap.Mode
		p.judged = 0
	}

	p.drawGrid(snap)

	if judged := snap.Tally.Hits + snap.Tally.Misses; nil != snap.Last && judged > p.judged {
		p.judged = judged
		r.AddDecoration(uint16(p.middle.Col-2), uint16(p.middle.Row), th.RenderJudgement(*snap.Last), judgementFrames)
	}
	if snap.Mode == game.Countdown {
		r.Fill(uint16(p.middle.Row), uint16(p.middle.Col), fmt.Sprintf("\033[1m%d\033[0m", snap.Countdown))
	}

	side := []string{
		fmt.Sprintf("       Mode:  %-10v", snap.Mode),
		fmt.Sprintf("   Sequence:  %-24.24v", snap.SequenceName),
		fmt.Sprintf("        BPM:  %-6v", snap.BPM),
		fmt.Sprintf("       Beat:  %4d / %-4d", snap.Beat+1, snap.TotalBeats),
		fmt.Sprintf("       Grid:  %-8v", snap.GridMode),
		fmt.Sprintf("  Detection:  %-8v", onOff(snap.DetectionActive)),
		"",
		fmt.Sprintf("      Score:  %-8d", snap.Tally.Score),
		fmt.Sprintf("      Combo:  %-8d", snap.Tally.Combo),
		fmt.Sprintf("  Max combo:  %-8d", snap.Tally.MaxCombo),
		fmt.Sprintf("       Hits:  %-8d", snap.Tally.Hits),
		fmt.Sprintf("     Misses:  %-8d", snap.Tally.Misses),
	}
	for i, line := range side {
		r.Fill(uint16(4+i), uint16(p.sideCol), line)
	}

	if nil != snap.Result {
		p.drawReview(snap.Result, 4+len(side)+1)
	}

	message := snap.Error
	if message == "" {
		message = p.notice
	}
	r.Fill(uint16(p.height-2), 2, fmt.Sprintf("\033[1;31m%-*.*s\033[0m", p.width-4, p.width-4, message))
	r.Fill(uint16(p.height-1), 2, "space start/stop   g grid   r again   backspace clear   esc quit")
}

func (p *Program) drawReview(result *score.Result, row int) {
	best := p.best[result.SequenceID]
	if result.Score > best {
		best = result.Score
		p.best[result.SequenceID] = best
	}
	lines := []string{
		fmt.Sprintf("      Grade:  %v", p.Theme.RenderGrade(result.Grade)),
		fmt.Sprintf("   Accuracy:  %6.1f%%", result.Accuracy),
		fmt.Sprintf("         XP:  %-6d", result.XP.Total()),
		fmt.Sprintf("       Best:  %-8d", best),
		fmt.Sprintf("       Time:  %-8v", result.Duration.Round(10*time.Millisecond)),
	}
	for i, line := range lines {
		p.Renderer.Fill(uint16(row+i), uint16(p.sideCol), line)
	}
}

// drawGrid draws the eight locations, the target of each hand above a
// location and the detected hand below it.
func (p *Program) drawGrid(snap *session.Snapshot) {
	r, th := p.Renderer, p.Theme
	for q, o := range offsets {
		row, col := p.middle.Row+o.Row, p.middle.Col+o.Col
		r.Fill(uint16(row-1), uint16(col-1), "   ")
		r.Fill(uint16(row), uint16(col), th.RenderCell(q.Cardinal() == (snap.GridMode == game.Diamond)))
		r.Fill(uint16(row+1), uint16(col-1), "   ")
	}

	if snap.Mode == game.Performing || snap.Mode == game.Countdown {
		_, target := snap.Target()
		if snap.Mode == game.Countdown {
			target = snap.Expected
		}
		for _, hand := range []game.Hand{game.Blue, game.Red} {
			if q := target.For(hand); nil != q {
				o := offsets[*q]
				r.Fill(uint16(p.middle.Row+o.Row-1), uint16(p.middle.Col+o.Col+handShift(hand)), th.RenderTarget(hand))
			}
		}
	}

	if nil != snap.Frame && snap.DetectionActive {
		for _, hand := range []game.Hand{game.Blue, game.Red} {
			if d := snap.Frame.For(hand); nil != d {
				o := offsets[d.Quadrant]
				r.Fill(uint16(p.middle.Row+o.Row+1), uint16(p.middle.Col+o.Col+handShift(hand)), th.RenderHand(hand))
			}
		}
	}
}

func handShift(h game.Hand) int {
	if h == game.Red {
		return 1
	}
	return -1
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

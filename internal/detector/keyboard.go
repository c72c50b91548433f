package detector

import (
	"context"
	"sync"
	"time"

	"github.com/eiannone/keyboard"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

type point struct{ X, Y float64 }

const diag = 0.7071

// Each hand is moved with its own block of keys. The centre key of a block
// takes the hand off the grid.
var (
	blueKeys = map[rune]*point{
		'w': {0, 1}, 'x': {0, -1}, 'a': {-1, 0}, 'd': {1, 0},
		'q': {-diag, diag}, 'e': {diag, diag}, 'z': {-diag, -diag}, 'c': {diag, -diag},
		's': nil,
	}
	redKeys = map[rune]*point{
		'i': {0, 1}, ',': {0, -1}, 'j': {-1, 0}, 'l': {1, 0},
		'u': {-diag, diag}, 'o': {diag, diag}, 'm': {-diag, -diag}, '.': {diag, -diag},
		'k': nil,
	}
)

// Keyboard is a detector for terminals without a camera: key presses stand
// in for landmarks and are classified like camera landmarks would be.
type Keyboard struct {
	sampler

	mu          sync.Mutex
	initialized bool
	blue, red   *point
	opts        Options
}

func NewKeyboard(period time.Duration) *Keyboard {
	return &Keyboard{sampler: sampler{period: period}}
}

func (k *Keyboard) Initialize(context.Context) error {
	k.mu.Lock()
	k.initialized = true
	k.mu.Unlock()
	return nil
}

// Handle consumes hand movement keys. It reports false for keys that do not
// move a hand so the caller can treat them as commands.
func (k *Keyboard) Handle(ev keyboard.KeyEvent) bool {
	if nil != ev.Err || ev.Key != 0 {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if p, ok := blueKeys[ev.Rune]; ok {
		k.blue = p
		return true
	}
	if p, ok := redKeys[ev.Rune]; ok {
		k.red = p
		return true
	}
	return false
}

func (k *Keyboard) StartRealTimeDetection(ctx context.Context, _ FrameSource, onSample func(game.Sample), opts Options) error {
	k.mu.Lock()
	if !k.initialized {
		k.mu.Unlock()
		return ErrNotInitialized
	}
	k.opts = opts
	k.mu.Unlock()

	return k.start(ctx, k.sample, onSample, opts.OnError)
}

func (k *Keyboard) sample() (game.Sample, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return game.Sample{
		Blue: classify(k.blue, k.opts),
		Red:  classify(k.red, k.opts),
	}, nil
}

func (k *Keyboard) StopDetection() { k.stop() }

func (k *Keyboard) Dispose() {
	k.stop()
	k.mu.Lock()
	k.initialized = false
	k.blue, k.red = nil, nil
	k.mu.Unlock()
}

func classify(p *point, opts Options) *game.Detection {
	if p == nil {
		return nil
	}
	q, ok := game.Classify(p.X, p.Y, opts.GridMode, opts.Mirror)
	if !ok {
		return nil
	}
	return &game.Detection{Quadrant: q, Confidence: 1}
}

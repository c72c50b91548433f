package detector

import (
	"context"
	"sync"
	"time"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

// DefaultPeriod approximates a 30fps camera.
const DefaultPeriod = 33 * time.Millisecond

// sampler runs a produce function at a fixed cadence on its own goroutine.
type sampler struct {
	period time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *sampler) start(ctx context.Context, produce func() (game.Sample, error), onSample func(game.Sample), onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	period := s.period
	if period <= 0 {
		period = DefaultPeriod
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample, err := produce()
				if nil != err {
					if onError != nil {
						onError(err)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				onSample(sample)
			}
		}
	}()
	return nil
}

// stop cancels the goroutine and waits for it to exit. Idempotent.
func (s *sampler) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *sampler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

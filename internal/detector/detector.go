// Package detector defines the contract the training core consumes to learn
// where each hand is, plus the detectors shipped with the command line tool.
package detector

import (
	"context"
	"errors"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

var (
	ErrInit           = errors.New("detector initialisation failed")
	ErrNotInitialized = errors.New("detector is not initialised")
	ErrRunning        = errors.New("detection is already running")
)

// InitError reports that the hardware or model behind a detector is
// unavailable. It matches ErrInit with errors.Is.
type InitError struct {
	Cause error
}

func (e *InitError) Error() string {
	if e.Cause == nil {
		return ErrInit.Error()
	}
	return ErrInit.Error() + ": " + e.Cause.Error()
}

func (e *InitError) Unwrap() error { return e.Cause }

func (e *InitError) Is(target error) bool { return target == ErrInit }

// FrameSource is the frame-bearing handle supplied by the camera. Its
// contents are opaque to the core.
type FrameSource interface {
	Name() string
}

// Source is a FrameSource that only carries a name.
type Source string

func (s Source) Name() string { return string(s) }

type Options struct {
	Mirror   bool
	GridMode game.GridMode
	// OnError receives failures after detection started. Detection has
	// stopped by the time it is called.
	OnError func(error)
}

// PositionDetector classifies hand positions from a frame source.
//
// Options cannot be changed in place: StopDetection must be called before
// StartRealTimeDetection is called again with different options.
type PositionDetector interface {
	Initialize(ctx context.Context) error
	// StartRealTimeDetection begins calling onSample at the cadence of
	// source, from a goroutine owned by the detector. onSample may be
	// called any number of times between beats.
	StartRealTimeDetection(ctx context.Context, source FrameSource, onSample func(game.Sample), opts Options) error
	StopDetection()
	Dispose()
}

package feedback

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"git.lost.host/meutraa/flowtrain/internal/log"
)

const sampleRate = beep.SampleRate(44100)

type tone struct {
	Hz       float64
	Duration time.Duration
}

var cues = map[Kind][]tone{
	KindStart:     {{880, 80 * time.Millisecond}},
	KindCountdown: {{660, 60 * time.Millisecond}},
	KindStop:      {{330, 120 * time.Millisecond}},
	KindComplete:  {{880, 80 * time.Millisecond}, {1320, 120 * time.Millisecond}},
}

// Beep plays a short sine cue on the default audio device. The device is
// opened in the background; cues triggered before it is open, or after it
// failed to open, are dropped.
type Beep struct {
	Volume float64
	Log    *log.Logger

	ready  atomic.Bool
	opened chan struct{}
}

func NewBeep(volume float64, logger *log.Logger) *Beep {
	return newBeep(volume, logger, openSpeaker)
}

func newBeep(volume float64, logger *log.Logger, open func() error) *Beep {
	b := &Beep{Volume: volume, Log: logger, opened: make(chan struct{})}
	go func() {
		defer close(b.opened)
		if err := open(); nil != err {
			b.Log.Warnf("audio cues disabled: %v", err)
			return
		}
		b.ready.Store(true)
	}()
	return b
}

func openSpeaker() error {
	return speaker.Init(sampleRate, sampleRate.N(time.Second/30))
}

// Trigger never waits for the audio device.
func (b *Beep) Trigger(kind Kind) {
	tones, found := cues[kind]
	if !found || !b.ready.Load() {
		return
	}
	streamers := make([]beep.Streamer, 0, len(tones))
	for _, t := range tones {
		streamers = append(streamers, beep.Take(sampleRate.N(t.Duration), sine(t.Hz, b.Volume)))
	}
	speaker.Play(beep.Seq(streamers...))
}

func sine(hz, volume float64) beep.Streamer {
	step := 2 * math.Pi * hz / float64(sampleRate)
	phase := 0.0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := math.Sin(phase) * volume
			samples[i][0], samples[i][1] = v, v
			phase += step
		}
		return len(samples), true
	})
}

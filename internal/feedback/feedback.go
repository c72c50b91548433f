// Package feedback gives the performer fire-and-forget cues on session
// transitions.
package feedback

type Kind string

const (
	KindStart     Kind = "start"
	KindCountdown Kind = "countdown"
	KindStop      Kind = "stop"
	KindComplete  Kind = "complete"
)

// Haptics triggers a cue. Implementations swallow their own failures.
type Haptics interface {
	Trigger(kind Kind)
}

type Nop struct{}

func (Nop) Trigger(Kind) {}

// Recorder remembers every cue, for tests and replays.
type Recorder struct {
	Kinds []Kind
}

func (r *Recorder) Trigger(kind Kind) {
	r.Kinds = append(r.Kinds, kind)
}

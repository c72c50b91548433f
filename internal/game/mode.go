package game

// Mode is the phase a training session is in.
type Mode uint8

const (
	Setup Mode = iota
	Countdown
	Performing
	Review
)

func (m Mode) String() string {
	switch m {
	case Setup:
		return "setup"
	case Countdown:
		return "countdown"
	case Performing:
		return "performing"
	case Review:
		return "review"
	}
	return "unknown"
}

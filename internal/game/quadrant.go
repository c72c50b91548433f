package game

import (
	"fmt"
	"math"
	"strings"
)

// Quadrant is a grid location a hand or prop can be classified into.
type Quadrant uint8

const (
	N Quadrant = iota + 1
	NE
	E
	SE
	S
	SW
	W
	NW
)

var quadrantNames = map[Quadrant]string{
	N:  "n",
	NE: "ne",
	E:  "e",
	SE: "se",
	S:  "s",
	SW: "sw",
	W:  "w",
	NW: "nw",
}

func (q Quadrant) String() string {
	if name, ok := quadrantNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quadrant(%d)", uint8(q))
}

// Cardinal reports whether q is one of the diamond grid locations.
func (q Quadrant) Cardinal() bool {
	return q == N || q == E || q == S || q == W
}

func ParseQuadrant(s string) (Quadrant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for q, name := range quadrantNames {
		if name == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quadrant %q", s)
}

// Hand identifies one of the two tracked props.
type Hand uint8

const (
	Blue Hand = iota
	Red
)

func (h Hand) String() string {
	if h == Red {
		return "red"
	}
	return "blue"
}

// GridMode changes how raw landmarks map to quadrants.
type GridMode uint8

const (
	// Diamond classifies into the cardinal locations n, e, s, w.
	Diamond GridMode = iota
	// Box classifies into the intercardinal locations ne, se, sw, nw.
	Box
)

func (m GridMode) String() string {
	if m == Box {
		return "box"
	}
	return "diamond"
}

// Toggle returns the other grid mode.
func (m GridMode) Toggle() GridMode {
	if m == Box {
		return Diamond
	}
	return Box
}

func ParseGridMode(s string) (GridMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diamond", "":
		return Diamond, nil
	case "box":
		return Box, nil
	}
	return Diamond, fmt.Errorf("unknown grid mode %q", s)
}

// DeadZone is the radius around the grid centre inside which a landmark
// is not assigned to any quadrant.
const DeadZone = 0.15

// Classify maps a landmark to a quadrant. Coordinates are normalised so the
// grid centre is the origin, x grows to the right and y grows upwards.
// Mirroring flips the horizontal axis, as a front-facing camera does.
func Classify(x, y float64, mode GridMode, mirror bool) (Quadrant, bool) {
	if mirror {
		x = -x
	}
	if math.Hypot(x, y) < DeadZone {
		return 0, false
	}
	deg := math.Atan2(y, x) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}

	if mode == Box {
		switch {
		case deg < 90:
			return NE, true
		case deg < 180:
			return NW, true
		case deg < 270:
			return SW, true
		default:
			return SE, true
		}
	}

	switch {
	case deg < 45 || deg >= 315:
		return E, true
	case deg < 135:
		return N, true
	case deg < 225:
		return W, true
	default:
		return S, true
	}
}

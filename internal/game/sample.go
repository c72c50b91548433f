package game

// Detection is one hand observed by a detector.
type Detection struct {
	Quadrant   Quadrant
	Confidence float64
}

// Sample is a detector's classification of both hands for one video frame.
// A nil hand was not detected.
type Sample struct {
	Blue *Detection
	Red  *Detection
}

func (s Sample) For(h Hand) *Detection {
	if h == Red {
		return s.Red
	}
	return s.Blue
}

// At builds a detection with full confidence.
func At(q Quadrant) *Detection {
	return &Detection{Quadrant: q, Confidence: 1}
}

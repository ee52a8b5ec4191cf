package device

import "math"

// Pulse is a SPICE PULSE(v1 v2 delay rise fall width period) shape. An
// infinite or non-positive period never repeats.
type Pulse struct {
	V1, V2 float64
	Delay  float64
	Rise   float64
	Fall   float64
	Width  float64
	Period float64
}

func (p Pulse) validate() bool {
	return p.Rise >= 0 && p.Fall >= 0 && p.Width >= 0 && p.Delay >= 0
}

// At returns the pulse value at time t.
func (p Pulse) At(t float64) float64 {
	if t < p.Delay {
		return p.V1
	}

	t -= p.Delay
	if p.Period > 0 && !math.IsInf(p.Period, 1) {
		t = math.Mod(t, p.Period)
	}

	if t < p.Rise {
		return p.V1 + (p.V2-p.V1)*t/p.Rise
	}
	if t < p.Rise+p.Width {
		return p.V2
	}

	fallStart := p.Rise + p.Width
	if t < fallStart+p.Fall {
		return p.V2 - (p.V2-p.V1)*(t-fallStart)/p.Fall
	}
	return p.V1
}

package raster

import (
	"fmt"
	"image/color"
	"math"
)

// Stop is a single break point of a color ramp.
type Stop struct {
	Threshold float64
	Color     color.NRGBA
}

// Ramp maps scalar values to colors by piecewise-linear interpolation
// between break points. Thresholds must be strictly increasing. Values below
// the first threshold map to fully transparent; values above the last clamp
// to the last stop.
type Ramp []Stop

// Validate checks the ramp invariants. A usable ramp has at least two stops
// with strictly increasing thresholds.
func (r Ramp) Validate() error {
	if len(r) < 2 {
		return fmt.Errorf("raster: ramp needs at least 2 stops, got %d", len(r))
	}
	for i := 1; i < len(r); i++ {
		if r[i].Threshold <= r[i-1].Threshold {
			return fmt.Errorf("raster: ramp thresholds must be strictly increasing, stop %d (%.3f) <= stop %d (%.3f)",
				i, r[i].Threshold, i-1, r[i-1].Threshold)
		}
	}
	return nil
}

// Floor returns the minimum visible threshold. Values below it produce no
// texel at all.
func (r Ramp) Floor() float64 {
	return r[0].Threshold
}

// At maps a value through the ramp.
func (r Ramp) At(v float64) color.NRGBA {
	if v < r[0].Threshold {
		return color.NRGBA{}
	}
	last := r[len(r)-1]
	if v >= last.Threshold {
		return last.Color
	}

	for i := 1; i < len(r); i++ {
		if v < r[i].Threshold {
			lo, hi := r[i-1], r[i]
			t := (v - lo.Threshold) / (hi.Threshold - lo.Threshold)
			return color.NRGBA{
				R: lerp(lo.Color.R, hi.Color.R, t),
				G: lerp(lo.Color.G, hi.Color.G, t),
				B: lerp(lo.Color.B, hi.Color.B, t),
				A: lerp(lo.Color.A, hi.Color.A, t),
			}
		}
	}
	return last.Color
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + t*(float64(b)-float64(a))))
}

// DefaultAuroraRamp is the ramp used for the OVATION aurora probability grid.
// Probabilities run 0-100; anything under 4 is treated as noise and stays
// invisible. The first stop is itself transparent so faint cells fade in
// instead of popping.
var DefaultAuroraRamp = Ramp{
	{Threshold: 4, Color: color.NRGBA{R: 0, G: 255, B: 0, A: 0}},
	{Threshold: 25, Color: color.NRGBA{R: 0, G: 100, B: 0, A: 170}},
	{Threshold: 60, Color: color.NRGBA{R: 255, G: 255, B: 0, A: 200}},
	{Threshold: 85, Color: color.NRGBA{R: 255, G: 140, B: 0, A: 220}},
	{Threshold: 100, Color: color.NRGBA{R: 255, G: 0, B: 0, A: 240}},
}

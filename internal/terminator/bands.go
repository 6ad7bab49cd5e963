package terminator

import (
	"time"
)

// graylineAltitudeDeg is the half-width of the enhanced-propagation band in
// solar altitude. The zone between +5 and -5 degrees is where long-path HF
// signals benefit from reduced D-layer absorption.
const graylineAltitudeDeg = 5.0

// Twilight altitude targets, degrees below the horizon.
const (
	CivilAltitudeDeg        = -6.0
	NauticalAltitudeDeg     = -12.0
	AstronomicalAltitudeDeg = -18.0
)

// GraylineBand returns the enhanced-propagation zone as a closed ring:
// the +5 degree curve walked west to east, the -5 degree curve walked back
// east to west, and the first point repeated to close the polygon.
func GraylineBand(instant time.Time, sampleCount int) (Curve, error) {
	upper, err := AltitudeCurve(instant, graylineAltitudeDeg, sampleCount)
	if err != nil {
		return nil, err
	}
	lower, err := AltitudeCurve(instant, -graylineAltitudeDeg, sampleCount)
	if err != nil {
		return nil, err
	}

	ring := make(Curve, 0, len(upper)+len(lower)+1)
	ring = append(ring, upper...)
	for i := len(lower) - 1; i >= 0; i-- {
		ring = append(ring, lower[i])
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

// TwilightCurves returns the civil (-6), nautical (-12) and astronomical
// (-18) twilight lines, in that order. These render as independent open
// lines, never closed into polygons.
func TwilightCurves(instant time.Time, sampleCount int) ([3]Curve, error) {
	var out [3]Curve
	targets := [3]float64{CivilAltitudeDeg, NauticalAltitudeDeg, AstronomicalAltitudeDeg}
	for i, alt := range targets {
		c, err := AltitudeCurve(instant, alt, sampleCount)
		if err != nil {
			return out, err
		}
		out[i] = c
	}
	return out, nil
}

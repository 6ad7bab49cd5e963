// Package terminator solves solar-altitude curves: for a fixed instant and a
// target altitude of the sun, the latitude at which that altitude occurs for
// each sampled longitude. Altitude 0 is the day/night terminator; negative
// targets trace the twilight lines.
//
// Every function here is pure and completes in bounded time. The iterative
// refinement runs a fixed number of steps with no convergence check so the
// output is deterministic for a given input.
package terminator

import (
	"fmt"
	"math"
	"time"

	"github.com/grayline/grayline/internal/ephemeris"
)

// Point is a position on the curve in geographic degrees.
type Point struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
}

// Curve is an ordered sequence of points with monotonically increasing
// longitudes spanning [-180, 180].
type Curve []Point

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi

	// equinoxDeclinationDeg is the declination band inside which the
	// closed-form terminator latitude degenerates (tan(dec) → 0) and latitude
	// is short-circuited to the equator.
	equinoxDeclinationDeg = 0.01

	// newtonIterations is the fixed refinement budget for nonzero target
	// altitudes. The iteration count, not a tolerance, is the contract.
	newtonIterations = 5

	// derivativeFloor guards the Newton step against near-zero derivatives.
	derivativeFloor = 1e-4
)

// AltitudeCurve returns the curve of latitudes at which the sun sits at
// targetAltitudeDeg for sampleCount+1 evenly spaced longitudes over
// [-180, 180] at the given instant.
//
// Samples that come out non-finite are dropped rather than emitted, so the
// returned curve can in principle be shorter than sampleCount+1; with the
// clamping and degeneracy guards in place this does not happen in practice.
func AltitudeCurve(instant time.Time, targetAltitudeDeg float64, sampleCount int) (Curve, error) {
	if sampleCount < 1 {
		return nil, fmt.Errorf("terminator: sample count must be >= 1, got %d", sampleCount)
	}

	sun := ephemeris.Compute(instant)
	gmst := ephemeris.GMSTDeg(instant)

	decRad := sun.DeclinationDeg * degToRad
	sinDec := math.Sin(decRad)
	cosDec := math.Cos(decRad)
	nearEquinox := math.Abs(sun.DeclinationDeg) < equinoxDeclinationDeg

	lonStep := 360.0 / float64(sampleCount)
	curve := make(Curve, 0, sampleCount+1)

	for i := 0; i <= sampleCount; i++ {
		lon := -180.0 + float64(i)*lonStep
		haRad := hourAngle(gmst, lon, sun.RightAscensionDeg) * degToRad

		lat := closedFormLatitude(haRad, decRad, nearEquinox)
		if targetAltitudeDeg != 0 {
			lat = refineLatitude(lat, haRad, sinDec, cosDec, targetAltitudeDeg)
		}

		if lat < -90 {
			lat = -90
		} else if lat > 90 {
			lat = 90
		}
		if math.IsNaN(lat) || math.IsInf(lat, 0) {
			continue
		}

		curve = append(curve, Point{LatDeg: lat, LonDeg: lon})
	}

	return curve, nil
}

// hourAngle is the sun's hour angle in degrees at the given longitude,
// reduced to [0, 360).
func hourAngle(gmstDeg, lonDeg, raDeg float64) float64 {
	ha := math.Mod(gmstDeg+lonDeg-raDeg, 360.0)
	if ha < 0 {
		ha += 360.0
	}
	return ha
}

// closedFormLatitude solves the zero-altitude case exactly:
//
//	lat = atan(-cos(HA) / tan(dec))
//
// Near an equinox tan(dec) approaches zero and the quotient blows up, so the
// latitude short-circuits to the equator.
func closedFormLatitude(haRad, decRad float64, nearEquinox bool) float64 {
	if nearEquinox {
		return 0
	}
	return math.Atan(-math.Cos(haRad)/math.Tan(decRad)) * radToDeg
}

// refineLatitude runs a fixed number of Newton-Raphson iterations on
//
//	f(lat) = sin(lat)·sin(dec) + cos(lat)·cos(dec)·cos(HA) − sin(target)
//
// starting from the closed-form zero-altitude estimate. The update step is
// skipped when the derivative is too small to divide by safely.
func refineLatitude(latDeg, haRad, sinDec, cosDec, targetAltitudeDeg float64) float64 {
	sinTarget := math.Sin(targetAltitudeDeg * degToRad)
	cosHA := math.Cos(haRad)
	lat := latDeg * degToRad

	for i := 0; i < newtonIterations; i++ {
		sinLat := math.Sin(lat)
		cosLat := math.Cos(lat)

		f := sinLat*sinDec + cosLat*cosDec*cosHA - sinTarget
		df := cosLat*sinDec - sinLat*cosDec*cosHA

		if math.Abs(df) <= derivativeFloor {
			continue
		}
		lat -= f / df
	}

	return lat * radToDeg
}

// Package ephemeris computes the sun's apparent position for a given instant.
//
// All functions are pure: the same instant always produces bit-identical
// output, and nothing is cached between calls. Callers that need a time
// series call repeatedly. Angles cross the API boundary in degrees;
// trigonometry is evaluated in radians internally.
package ephemeris

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// SolarState is the sun's equatorial position at a single instant.
type SolarState struct {
	DeclinationDeg    float64 // in [-23.45, 23.45]
	RightAscensionDeg float64 // in [0, 360)
}

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Adjust year/month for Jan/Feb (treat as months 13/14 of previous year).
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// Compute returns the sun's declination and right ascension for the instant.
//
// Low-accuracy solar theory (Meeus Ch. 25): mean longitude and mean anomaly
// as polynomials in Julian centuries, a three-term equation of center, and a
// nutation correction through the longitude of the ascending node. Good to
// about 0.01 degrees in declination, which is well below a single raster cell.
func Compute(t time.Time) SolarState {
	jd := JulianDate(t)
	T := (jd - j2000) / 36525.0

	// Geometric mean longitude and mean anomaly of the sun, degrees.
	L0 := normDeg(280.46646 + 36000.76983*T + 0.0003032*T*T)
	M := normDeg(357.52911 + 35999.05029*T - 0.0001537*T*T)
	mRad := M * degToRad

	// Equation of center.
	C := (1.914602-0.004817*T-0.000014*T*T)*math.Sin(mRad) +
		(0.019993-0.000101*T)*math.Sin(2*mRad) +
		0.000289*math.Sin(3*mRad)

	// True longitude, then apparent longitude corrected for nutation.
	trueLon := L0 + C
	omega := 125.04 - 1934.136*T
	lambda := trueLon - 0.00569 - 0.00478*math.Sin(omega*degToRad)
	lambdaRad := lambda * degToRad

	// Obliquity of the ecliptic.
	epsRad := (23.439291 - 0.0130042*T) * degToRad

	decl := math.Asin(math.Sin(epsRad) * math.Sin(lambdaRad))
	ra := math.Atan2(math.Cos(epsRad)*math.Sin(lambdaRad), math.Cos(lambdaRad))

	return SolarState{
		DeclinationDeg:    decl * radToDeg,
		RightAscensionDeg: normDeg(ra * radToDeg),
	}
}

// GMSTDeg calculates Greenwich Mean Sidereal Time in degrees for a given UTC time.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
func GMSTDeg(t time.Time) float64 {
	jd := JulianDate(t)
	tUT1 := (jd - j2000) / 36525.0

	// GMST in seconds of time.
	// 876600h = 876600 * 3600 = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	// Normalize to [0, 86400) seconds, then convert to degrees (360° per day).
	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}

	return gmstSec / 86400.0 * 360.0
}

// normDeg reduces an angle to [0, 360).
func normDeg(d float64) float64 {
	d = math.Mod(d, 360.0)
	if d < 0 {
		d += 360.0
	}
	return d
}

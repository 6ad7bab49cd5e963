package terminator

import (
	"math"
	"testing"
	"time"

	"github.com/grayline/grayline/internal/ephemeris"
)

// solsticeInstant has near-maximal declination, far away from the equinox
// degeneracy. Used by tests that need a well-conditioned solve.
var solsticeInstant = time.Date(2025, 6, 21, 2, 42, 0, 0, time.UTC)

// TestAltitudeCurveShape verifies the structural invariants: sampleCount+1
// points, strictly increasing longitudes spanning [-180, 180], latitudes
// clamped and finite.
func TestAltitudeCurveShape(t *testing.T) {
	tests := []struct {
		name     string
		altitude float64
		samples  int
	}{
		{"terminator 360", 0, 360},
		{"terminator 90", 0, 90},
		{"grayline upper", 5, 180},
		{"grayline lower", -5, 180},
		{"civil twilight", -6, 360},
		{"nautical twilight", -12, 360},
		{"astronomical twilight", -18, 360},
		{"single segment", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve, err := AltitudeCurve(solsticeInstant, tt.altitude, tt.samples)
			if err != nil {
				t.Fatalf("AltitudeCurve failed: %v", err)
			}

			if len(curve) != tt.samples+1 {
				t.Fatalf("curve length = %d, want %d", len(curve), tt.samples+1)
			}
			if curve[0].LonDeg != -180 || curve[len(curve)-1].LonDeg != 180 {
				t.Errorf("longitude span = [%.2f, %.2f], want [-180, 180]",
					curve[0].LonDeg, curve[len(curve)-1].LonDeg)
			}

			for i, p := range curve {
				if i > 0 && p.LonDeg <= curve[i-1].LonDeg {
					t.Fatalf("longitudes not strictly increasing at index %d: %.4f <= %.4f",
						i, p.LonDeg, curve[i-1].LonDeg)
				}
				if p.LatDeg < -90 || p.LatDeg > 90 {
					t.Errorf("latitude out of range at lon %.1f: %.4f", p.LonDeg, p.LatDeg)
				}
				if math.IsNaN(p.LatDeg) || math.IsInf(p.LatDeg, 0) {
					t.Errorf("non-finite latitude at lon %.1f", p.LonDeg)
				}
			}
		})
	}
}

// TestAltitudeCurveInvalidSampleCount verifies fail-fast on bad configuration.
func TestAltitudeCurveInvalidSampleCount(t *testing.T) {
	for _, n := range []int{0, -1, -360} {
		if _, err := AltitudeCurve(solsticeInstant, 0, n); err == nil {
			t.Errorf("sampleCount=%d: expected error, got nil", n)
		}
	}
}

// TestEquinoxTerminator: at the instant of minimal declination around the
// March 2025 equinox, the zero-altitude curve must sit on the equator for
// every sampled longitude (the short-circuit path).
func TestEquinoxTerminator(t *testing.T) {
	// Find the declination zero crossing in a window around the published
	// equinox time; the short-circuit triggers within ±0.01 degrees of it.
	center := time.Date(2025, 3, 20, 9, 1, 0, 0, time.UTC)
	best := center
	bestDec := math.Abs(ephemeris.Compute(center).DeclinationDeg)
	for m := -120; m <= 120; m++ {
		instant := center.Add(time.Duration(m) * time.Minute)
		if d := math.Abs(ephemeris.Compute(instant).DeclinationDeg); d < bestDec {
			bestDec = d
			best = instant
		}
	}
	if bestDec >= 0.01 {
		t.Fatalf("no declination zero crossing near equinox: min |dec| = %.5f", bestDec)
	}

	curve, err := AltitudeCurve(best, 0, 360)
	if err != nil {
		t.Fatalf("AltitudeCurve failed: %v", err)
	}
	for _, p := range curve {
		if p.LatDeg != 0 {
			t.Fatalf("latitude at lon %.1f = %.6f, want 0 (equinox short-circuit)", p.LonDeg, p.LatDeg)
		}
	}
}

// TestAltitudeCurveResidual plugs solved latitudes back into the altitude
// equation and checks the residual. Longitudes where the target altitude is
// not reachable at any latitude (the achievable amplitude at that hour angle
// is below the target) are skipped; there the solver clamps instead of
// converging, which is the documented behavior.
func TestAltitudeCurveResidual(t *testing.T) {
	const target = 5.0
	const samples = 180

	sun := ephemeris.Compute(solsticeInstant)
	gmst := ephemeris.GMSTDeg(solsticeInstant)
	decRad := sun.DeclinationDeg * degToRad
	sinDec, cosDec := math.Sin(decRad), math.Cos(decRad)

	curve, err := AltitudeCurve(solsticeInstant, target, samples)
	if err != nil {
		t.Fatalf("AltitudeCurve failed: %v", err)
	}

	checked := 0
	for _, p := range curve {
		haRad := hourAngle(gmst, p.LonDeg, sun.RightAscensionDeg) * degToRad
		cosHA := math.Cos(haRad)

		// Max |altitude| achievable over latitude at this hour angle.
		amplitude := math.Asin(math.Sqrt(sinDec*sinDec+cosDec*cosDec*cosHA*cosHA)) * radToDeg
		if amplitude < target+3 {
			continue
		}

		latRad := p.LatDeg * degToRad
		altitude := math.Asin(math.Sin(latRad)*sinDec+math.Cos(latRad)*cosDec*cosHA) * radToDeg
		if math.Abs(altitude-target) > 0.5 {
			t.Errorf("lon %.1f: altitude at solved latitude = %.4f, want %.1f", p.LonDeg, altitude, target)
		}
		checked++
	}

	if checked < samples/2 {
		t.Fatalf("residual check skipped too many samples: only %d of %d checked", checked, samples+1)
	}
}

// TestAltitudeCurveDeterministic: fixed iteration counts and no hidden state
// mean two calls with the same arguments produce identical curves.
func TestAltitudeCurveDeterministic(t *testing.T) {
	a, err := AltitudeCurve(solsticeInstant, -12, 360)
	if err != nil {
		t.Fatal(err)
	}
	b, err := AltitudeCurve(solsticeInstant, -12, 360)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("point %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// TestGraylineBandRing verifies the enhanced-propagation polygon structure:
// upper curve forward, lower curve reversed, closing point repeated.
func TestGraylineBandRing(t *testing.T) {
	const samples = 180
	ring, err := GraylineBand(solsticeInstant, samples)
	if err != nil {
		t.Fatalf("GraylineBand failed: %v", err)
	}

	wantLen := 2*(samples+1) + 1
	if len(ring) != wantLen {
		t.Fatalf("ring length = %d, want %d", len(ring), wantLen)
	}
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring not closed: first %+v, last %+v", ring[0], ring[len(ring)-1])
	}

	// First half walks west to east, second half back east to west.
	upper := ring[:samples+1]
	lower := ring[samples+1 : 2*(samples+1)]
	for i := 1; i < len(upper); i++ {
		if upper[i].LonDeg <= upper[i-1].LonDeg {
			t.Fatalf("upper edge not eastbound at %d", i)
		}
	}
	for i := 1; i < len(lower); i++ {
		if lower[i].LonDeg >= lower[i-1].LonDeg {
			t.Fatalf("lower edge not westbound at %d", i)
		}
	}
}

// TestTwilightCurves returns three open curves in civil/nautical/astronomical
// order.
func TestTwilightCurves(t *testing.T) {
	const samples = 120
	curves, err := TwilightCurves(solsticeInstant, samples)
	if err != nil {
		t.Fatalf("TwilightCurves failed: %v", err)
	}

	for i, c := range curves {
		if len(c) != samples+1 {
			t.Errorf("curve %d length = %d, want %d", i, len(c), samples+1)
		}
	}

	// Deeper twilight lines sit further onto the night side: away from the
	// clamped polar regions the three latitudes must separate.
	distinct := 0
	for i := range curves[0] {
		a, b, c := curves[0][i].LatDeg, curves[1][i].LatDeg, curves[2][i].LatDeg
		if a != b && b != c && a != c {
			distinct++
		}
	}
	if distinct < samples/4 {
		t.Errorf("twilight curves barely separate: %d of %d longitudes distinct", distinct, samples+1)
	}
}

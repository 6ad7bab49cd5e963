// Package raster turns a sparse (longitude, latitude, value) grid into a
// color-mapped RGBA image aligned to an equirectangular projection.
//
// The compositor is a pure function: it reads its arguments, allocates, and
// returns a new image. Malformed samples never cause an error; they are
// dropped. Errors are reserved for broken configuration (bad dimensions,
// invalid ramp), which indicates a programming mistake in the caller.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Sample is one cell of the sparse input grid. Longitude is accepted in
// either the grid-native [0, 360) convention or the map-native [-180, 180)
// convention.
type Sample struct {
	LonDeg float64
	LatDeg float64
	Value  float64
}

// Bounds is the geographic extent of a composited image. Always the full
// globe: the raster drapes onto an equirectangular map surface.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// FullGlobe is the fixed extent of every composited raster.
var FullGlobe = Bounds{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}

// Image is an immutable composited raster. Column 0 is longitude -180, row 0
// is the north pole.
type Image struct {
	img    *image.NRGBA
	Width  int
	Height int
	Bounds Bounds
}

// At returns the texel at (x, y). Out-of-range coordinates return the zero
// (fully transparent) color.
func (im *Image) At(x, y int) color.NRGBA {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return color.NRGBA{}
	}
	return im.img.NRGBAAt(x, y)
}

// EncodePNG writes the raster as a PNG stream.
func (im *Image) EncodePNG(w io.Writer) error {
	return png.Encode(w, im.img)
}

// Composite maps samples through the ramp onto a gridWidth×gridHeight base
// raster (one texel per integer-degree cell), then resamples it up by
// upscale with bilinear interpolation as a presentation smoothing step.
//
// Cell addressing follows the map convention centered on 0° longitude:
// native grid longitudes are shifted by 180° and wrapped so that column 0 of
// the output corresponds to -180°. Row 0 is the north pole. Later samples
// overwrite earlier ones in the same cell. Samples with non-finite or
// out-of-range coordinates, or with values under the ramp's visibility
// floor, are silently dropped; an empty sample set yields an all-transparent
// raster.
func Composite(samples []Sample, ramp Ramp, gridWidth, gridHeight, upscale int) (*Image, error) {
	if gridWidth < 1 || gridHeight < 1 {
		return nil, fmt.Errorf("raster: grid dimensions must be positive, got %dx%d", gridWidth, gridHeight)
	}
	if upscale < 1 {
		return nil, fmt.Errorf("raster: upscale factor must be >= 1, got %d", upscale)
	}
	if err := ramp.Validate(); err != nil {
		return nil, err
	}

	base := image.NewNRGBA(image.Rect(0, 0, gridWidth, gridHeight))
	floor := ramp.Floor()

	for _, s := range samples {
		if !finite(s.LonDeg) || !finite(s.LatDeg) || !finite(s.Value) {
			continue
		}
		if s.Value < floor {
			continue
		}

		lon := s.LonDeg
		if lon < 0 {
			lon += 360 // map convention to grid-native
		}
		if lon < 0 || lon > 360 || s.LatDeg < -90 || s.LatDeg > 90 {
			continue
		}

		// Shift by 180° and wrap so column 0 lands on -180°.
		x := (int(math.Round(lon)) + gridWidth/2) % gridWidth
		y := gridHeight/2 - int(math.Round(s.LatDeg))
		if x < 0 || y < 0 || y >= gridHeight {
			continue
		}

		base.SetNRGBA(x, y, ramp.At(s.Value))
	}

	if upscale == 1 {
		return &Image{img: base, Width: gridWidth, Height: gridHeight, Bounds: FullGlobe}, nil
	}

	w, h := gridWidth*upscale, gridHeight*upscale
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), base, base.Bounds(), xdraw.Src, nil)

	return &Image{img: dst, Width: w, Height: h, Bounds: FullGlobe}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/raster"
	"github.com/grayline/grayline/internal/terminator"
)

// Offline harness: compute the current terminator products, and if a cached
// OVATION document is given as argv[1], composite it to /tmp/aurora_diag.png.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	now := time.Now().UTC()
	fmt.Printf("Instant: %v\n", now.Format(time.RFC3339))

	term, err := terminator.AltitudeCurve(now, 0, 360)
	if err != nil {
		fmt.Println("ERROR computing terminator:", err)
		os.Exit(1)
	}
	fmt.Printf("Terminator: %d points, lat[0]=%.3f lat[180]=%.3f\n",
		len(term), term[0].LatDeg, term[180].LatDeg)

	gray, err := terminator.GraylineBand(now, 360)
	if err != nil {
		fmt.Println("ERROR computing grayline:", err)
		os.Exit(1)
	}
	fmt.Printf("Grayline ring: %d points\n", len(gray))

	twilight, err := terminator.TwilightCurves(now, 360)
	if err != nil {
		fmt.Println("ERROR computing twilight:", err)
		os.Exit(1)
	}
	for i, name := range []string{"civil", "nautical", "astronomical"} {
		fmt.Printf("  %s: %d points, lat[90]=%.3f\n", name, len(twilight[i]), twilight[i][90].LatDeg)
	}

	if len(os.Args) < 2 {
		fmt.Println("\nNo OVATION file given, skipping raster.")
		return
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Println("ERROR reading OVATION file:", err)
		os.Exit(1)
	}

	ds, err := aurora.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing OVATION:", err)
		os.Exit(1)
	}
	fmt.Printf("\nParsed %d aurora samples, observation %v\n",
		len(ds.Samples), ds.ObservationTime.Format(time.RFC3339))

	img, err := raster.Composite(ds.Samples, raster.DefaultAuroraRamp, 360, 181, 4)
	if err != nil {
		fmt.Println("ERROR compositing:", err)
		os.Exit(1)
	}

	out, err := os.Create("/tmp/aurora_diag.png")
	if err != nil {
		fmt.Println("ERROR creating output:", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := img.EncodePNG(out); err != nil {
		fmt.Println("ERROR encoding PNG:", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %dx%d raster to /tmp/aurora_diag.png\n", img.Width, img.Height)
}

// Package overlay owns the lifecycle of the rendered overlay products: the
// terminator/twilight geometry recomputed once per minute and the aurora
// raster rebuilt whenever a new dataset lands in the store.
//
// The numeric engines themselves are pure; this package adds the scheduling,
// generation tracking and atomic installation around them. A single
// maintenance goroutine performs all builds, so at most one raster build is
// ever in flight, and because each build reads the latest dataset from the
// store, a newer fetch supersedes an older one instead of queuing behind it.
package overlay

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/metrics"
	"github.com/grayline/grayline/internal/raster"
	"github.com/grayline/grayline/internal/terminator"
)

// Config holds overlay lifecycle configuration loaded from environment variables.
type Config struct {
	GeometryInterval time.Duration // terminator recompute cadence (default: 60s)
	SampleCount      int           // longitudes per curve (default: 360)
	GridWidth        int           // base raster width (default: 360)
	GridHeight       int           // base raster height (default: 181)
	Upscale          int           // raster upscale factor (default: 4)
	Ramp             raster.Ramp   // color ramp (default: raster.DefaultAuroraRamp)
}

// Geometry is one generation of terminator products. Immutable once installed.
type Geometry struct {
	ComputedAt   time.Time
	Terminator   terminator.Curve
	Grayline     terminator.Curve
	Civil        terminator.Curve
	Nautical     terminator.Curve
	Astronomical terminator.Curve
}

// AuroraRaster is one generation of the composited aurora image. Immutable
// once installed; ownership passes to whoever holds the pointer, and an old
// generation is simply dropped when a newer one replaces it.
type AuroraRaster struct {
	BuiltAt          time.Time
	DatasetFetchedAt time.Time
	ObservationTime  time.Time
	ForecastTime     time.Time
	SampleCount      int
	Image            *raster.Image
}

// Engine drives periodic recomputation and serves the latest generations.
// Safe for concurrent use: readers only ever see fully built products.
type Engine struct {
	config Config
	store  *aurora.Store
	logger *slog.Logger

	geometry atomic.Pointer[Geometry]
	aurora   atomic.Pointer[AuroraRaster]

	geometryGens atomic.Int64
	rasterGens   atomic.Int64
	rasterErrors atomic.Int64
}

// NewEngine creates an overlay engine. Zero config fields get defaults;
// plainly broken values are rejected here rather than at first tick.
func NewEngine(config Config, store *aurora.Store, logger *slog.Logger) (*Engine, error) {
	if config.GeometryInterval == 0 {
		config.GeometryInterval = time.Minute
	}
	if config.SampleCount == 0 {
		config.SampleCount = 360
	}
	if config.GridWidth == 0 {
		config.GridWidth = 360
	}
	if config.GridHeight == 0 {
		config.GridHeight = 181
	}
	if config.Upscale == 0 {
		config.Upscale = 4
	}
	if config.Ramp == nil {
		config.Ramp = raster.DefaultAuroraRamp
	}

	if config.SampleCount < 1 {
		return nil, fmt.Errorf("overlay: sample count must be >= 1, got %d", config.SampleCount)
	}
	if config.GridWidth < 1 || config.GridHeight < 1 || config.Upscale < 1 {
		return nil, fmt.Errorf("overlay: invalid raster dimensions %dx%d upscale %d",
			config.GridWidth, config.GridHeight, config.Upscale)
	}
	if err := config.Ramp.Validate(); err != nil {
		return nil, err
	}

	logger.Info("overlay engine initialized",
		"geometry_interval_seconds", config.GeometryInterval.Seconds(),
		"sample_count", config.SampleCount,
		"grid", fmt.Sprintf("%dx%d", config.GridWidth, config.GridHeight),
		"upscale", config.Upscale,
	)

	return &Engine{
		config: config,
		store:  store,
		logger: logger,
	}, nil
}

// Geometry returns the latest geometry generation, or nil before the first
// compute.
func (e *Engine) Geometry() *Geometry {
	return e.geometry.Load()
}

// Aurora returns the latest raster generation, or nil if no dataset has been
// composited yet.
func (e *Engine) Aurora() *AuroraRaster {
	return e.aurora.Load()
}

// RecomputeGeometry builds and installs a new geometry generation for the
// given instant.
func (e *Engine) RecomputeGeometry(instant time.Time) error {
	start := time.Now()

	term, err := terminator.AltitudeCurve(instant, 0, e.config.SampleCount)
	if err != nil {
		return fmt.Errorf("terminator curve: %w", err)
	}
	gray, err := terminator.GraylineBand(instant, e.config.SampleCount)
	if err != nil {
		return fmt.Errorf("grayline band: %w", err)
	}
	twilight, err := terminator.TwilightCurves(instant, e.config.SampleCount)
	if err != nil {
		return fmt.Errorf("twilight curves: %w", err)
	}

	e.geometry.Store(&Geometry{
		ComputedAt:   instant.UTC(),
		Terminator:   term,
		Grayline:     gray,
		Civil:        twilight[0],
		Nautical:     twilight[1],
		Astronomical: twilight[2],
	})
	e.geometryGens.Add(1)

	duration := time.Since(start)
	metrics.ObserveGeometryCompute(duration)
	e.logger.Debug("geometry generation installed",
		"instant", instant.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// RebuildAurora composites the given dataset and installs the result as the
// new raster generation.
func (e *Engine) RebuildAurora(ds *aurora.Dataset) error {
	start := time.Now()

	img, err := raster.Composite(ds.Samples, e.config.Ramp, e.config.GridWidth, e.config.GridHeight, e.config.Upscale)
	if err != nil {
		e.rasterErrors.Add(1)
		metrics.IncRasterBuildErrors()
		return fmt.Errorf("aurora composite: %w", err)
	}

	e.aurora.Store(&AuroraRaster{
		BuiltAt:          time.Now().UTC(),
		DatasetFetchedAt: ds.FetchedAt,
		ObservationTime:  ds.ObservationTime,
		ForecastTime:     ds.ForecastTime,
		SampleCount:      len(ds.Samples),
		Image:            img,
	})
	e.rasterGens.Add(1)

	duration := time.Since(start)
	metrics.ObserveRasterBuild(duration)
	e.logger.Info("aurora raster generation installed",
		"samples", len(ds.Samples),
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Stats holds overlay lifecycle statistics for the stats endpoint.
type Stats struct {
	GeometryComputedAt  time.Time `json:"geometry_computed_at"`
	GeometryGenerations int64     `json:"geometry_generations"`
	RasterBuiltAt       time.Time `json:"raster_built_at"`
	RasterGenerations   int64     `json:"raster_generations"`
	RasterBuildErrors   int64     `json:"raster_build_errors"`
	DatasetFetchedAt    time.Time `json:"dataset_fetched_at"`
	DatasetSamples      int       `json:"dataset_samples"`
}

// Stats returns current lifecycle statistics.
func (e *Engine) Stats() Stats {
	st := Stats{
		GeometryGenerations: e.geometryGens.Load(),
		RasterGenerations:   e.rasterGens.Load(),
		RasterBuildErrors:   e.rasterErrors.Load(),
	}
	if g := e.geometry.Load(); g != nil {
		st.GeometryComputedAt = g.ComputedAt
	}
	if a := e.aurora.Load(); a != nil {
		st.RasterBuiltAt = a.BuiltAt
		st.DatasetFetchedAt = a.DatasetFetchedAt
		st.DatasetSamples = a.SampleCount
	}
	return st
}

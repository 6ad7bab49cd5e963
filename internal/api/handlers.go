package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/metrics"
	"github.com/grayline/grayline/internal/overlay"
	"github.com/grayline/grayline/internal/terminator"
)

// Request budget for on-demand curve computation. Each sample is a Newton
// refinement over five iterations; 10800 samples is a 1/30-degree curve and
// completes in well under a millisecond.
const maxCurveSamples = 10800

// Altitude bounds for on-demand curves. Beyond these the iso-altitude set is
// empty or degenerate for most of the year.
const (
	minAltitudeDeg = -90.0
	maxAltitudeDeg = 90.0
)

type handlers struct {
	engine  *overlay.Engine
	store   *aurora.Store
	fetcher *aurora.Fetcher
	cache   *aurora.Cache
	logger  *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// terminator computes an iso-altitude curve on demand.
// GET /api/v1/terminator?altitude=0&samples=360&at=2026-03-01T12:00:00Z
func (h *handlers) terminator(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	altitude := 0.0
	if s := q.Get("altitude"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid altitude: "+s)
			return
		}
		if v < minAltitudeDeg || v > maxAltitudeDeg {
			writeError(w, http.StatusBadRequest, "altitude out of range [-90, 90]")
			return
		}
		altitude = v
	}

	samples := 360
	if s := q.Get("samples"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "invalid samples: "+s)
			return
		}
		if v > maxCurveSamples {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":       "samples exceeds budget",
				"max_samples": maxCurveSamples,
			})
			return
		}
		samples = v
	}

	instant := time.Now().UTC()
	if s := q.Get("at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at timestamp (want RFC3339): "+s)
			return
		}
		instant = t.UTC()
	}

	start := time.Now()
	curve, err := terminator.AltitudeCurve(instant, altitude, samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ObserveGeometryCompute(time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"computed_at":  instant.Format(time.RFC3339),
		"altitude_deg": altitude,
		"samples":      samples,
		"points":       curve,
	})
}

type geometryResponse struct {
	ComputedAt   string           `json:"computed_at"`
	Terminator   terminator.Curve `json:"terminator"`
	Grayline     terminator.Curve `json:"grayline"`
	Civil        terminator.Curve `json:"civil"`
	Nautical     terminator.Curve `json:"nautical"`
	Astronomical terminator.Curve `json:"astronomical"`
}

// overlayTerminator serves the latest precomputed geometry generation.
// GET /api/v1/overlays/terminator
func (h *handlers) overlayTerminator(w http.ResponseWriter, r *http.Request) {
	g := h.engine.Geometry()
	if g == nil {
		writeError(w, http.StatusServiceUnavailable, "no geometry computed yet")
		return
	}

	writeJSON(w, http.StatusOK, geometryResponse{
		ComputedAt:   g.ComputedAt.Format(time.RFC3339),
		Terminator:   g.Terminator,
		Grayline:     g.Grayline,
		Civil:        g.Civil,
		Nautical:     g.Nautical,
		Astronomical: g.Astronomical,
	})
}

// auroraPNG serves the latest composited aurora raster.
// GET /api/v1/overlays/aurora.png
func (h *handlers) auroraPNG(w http.ResponseWriter, r *http.Request) {
	a := h.engine.Aurora()
	if a == nil {
		writeError(w, http.StatusServiceUnavailable, "no aurora raster built yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	if err := a.Image.EncodePNG(w); err != nil {
		// Headers already sent; log and give up on this response.
		h.logger.Warn("png encode", "component", "api", "error", err)
	}
}

// auroraMetadata describes the current raster generation without the pixels.
// GET /api/v1/overlays/aurora/metadata
func (h *handlers) auroraMetadata(w http.ResponseWriter, r *http.Request) {
	a := h.engine.Aurora()
	if a == nil {
		writeError(w, http.StatusServiceUnavailable, "no aurora raster built yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"built_at":           a.BuiltAt.Format(time.RFC3339),
		"dataset_fetched_at": a.DatasetFetchedAt.Format(time.RFC3339),
		"observation_time":   a.ObservationTime.Format(time.RFC3339),
		"forecast_time":      a.ForecastTime.Format(time.RFC3339),
		"samples":            a.SampleCount,
		"width":              a.Image.Width,
		"height":             a.Image.Height,
		"bounds":             a.Image.Bounds,
	})
}

// stats reports engine counters for dashboards and debugging.
// GET /api/v1/overlays/stats
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// auroraRefresh forces an immediate fetch/parse/rebuild cycle. Protected by
// bearer auth; the maintenance loop picks up the new dataset on its next tick,
// but we also rebuild inline so the response reflects the new generation.
// POST /api/v1/aurora/refresh
func (h *handlers) auroraRefresh(w http.ResponseWriter, r *http.Request) {
	ds, err := aurora.Refresh(r.Context(), h.fetcher, h.store, h.cache, h.logger)
	if err != nil {
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}

	if err := h.engine.RebuildAurora(ds); err != nil {
		writeError(w, http.StatusInternalServerError, "raster rebuild failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fetched_at":       ds.FetchedAt.Format(time.RFC3339),
		"observation_time": ds.ObservationTime.Format(time.RFC3339),
		"forecast_time":    ds.ForecastTime.Format(time.RFC3339),
		"samples":          len(ds.Samples),
	})
}

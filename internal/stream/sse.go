// Package stream implements Server-Sent Events (SSE) streaming of overlay
// generations. Clients connect via GET /api/v1/stream/overlays and receive a
// terminator geometry message whenever a new generation is installed, plus a
// lightweight notification when a new aurora raster is available (clients
// re-fetch the PNG themselves).
//
// SSE message format:
//
//	data: {"type":"terminator_update","computed_at":"...","terminator":[...],...}\n\n
//	data: {"type":"aurora_update","built_at":"...","samples":1234}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","geometry_generations":12,"raster_generations":3,"dataset_samples":1432}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/grayline/grayline/internal/httputil"
	"github.com/grayline/grayline/internal/metrics"
	"github.com/grayline/grayline/internal/overlay"
	"github.com/grayline/grayline/internal/terminator"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	CheckInterval      time.Duration // How often to poll for new generations (default: 5s).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honor X-Forwarded-For / X-Real-IP.
}

// Handler manages SSE streaming connections.
type Handler struct {
	engine  *overlay.Engine
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(engine *overlay.Engine, config Config, logger *slog.Logger) *Handler {
	if config.CheckInterval == 0 {
		config.CheckInterval = 5 * time.Second
	}
	if config.KeepaliveInterval == 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		engine:  engine,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandleOverlays serves the SSE overlay stream.
// GET /api/v1/stream/overlays
func (h *Handler) HandleOverlays(w http.ResponseWriter, r *http.Request) {
	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	st := h.engine.Stats()
	meta := metadataMessage{
		Type:                "metadata",
		GeometryGenerations: st.GeometryGenerations,
		RasterGenerations:   st.RasterGenerations,
		DatasetSamples:      st.DatasetSamples,
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	// Push the current generations immediately so a fresh client does not
	// wait a full cadence for its first geometry.
	var lastGeometry, lastRaster time.Time
	if g := h.engine.Geometry(); g != nil {
		if err := c.sendJSON(buildGeometryMessage(g)); err != nil {
			metrics.IncStreamErrors("send_error")
			return
		}
		lastGeometry = g.ComputedAt
	}
	if a := h.engine.Aurora(); a != nil {
		if err := c.sendJSON(buildAuroraMessage(a)); err != nil {
			metrics.IncStreamErrors("send_error")
			return
		}
		lastRaster = a.BuiltAt
	}

	ticker := time.NewTicker(h.config.CheckInterval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			sent := false

			if g := h.engine.Geometry(); g != nil && g.ComputedAt.After(lastGeometry) {
				if err := c.sendJSON(buildGeometryMessage(g)); err != nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
					return
				}
				lastGeometry = g.ComputedAt
				sent = true
			}

			if a := h.engine.Aurora(); a != nil && a.BuiltAt.After(lastRaster) {
				if err := c.sendJSON(buildAuroraMessage(a)); err != nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
					return
				}
				lastRaster = a.BuiltAt
				sent = true
			}

			if sent {
				// Reset keepalive since we just sent data.
				keepaliveTicker.Reset(h.config.KeepaliveInterval)
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildGeometryMessage formats a geometry generation into the SSE payload.
func buildGeometryMessage(g *overlay.Geometry) geometryMessage {
	return geometryMessage{
		Type:         "terminator_update",
		ComputedAt:   g.ComputedAt.UTC().Format(time.RFC3339),
		Terminator:   g.Terminator,
		Grayline:     g.Grayline,
		Civil:        g.Civil,
		Nautical:     g.Nautical,
		Astronomical: g.Astronomical,
	}
}

// buildAuroraMessage formats a raster generation notification. The image
// itself is not inlined; clients fetch /api/v1/overlays/aurora.png.
func buildAuroraMessage(a *overlay.AuroraRaster) auroraMessage {
	return auroraMessage{
		Type:    "aurora_update",
		BuiltAt: a.BuiltAt.UTC().Format(time.RFC3339),
		Samples: a.SampleCount,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type                string `json:"type"`
	GeometryGenerations int64  `json:"geometry_generations"`
	RasterGenerations   int64  `json:"raster_generations"`
	DatasetSamples      int    `json:"dataset_samples"`
}

type geometryMessage struct {
	Type         string           `json:"type"`
	ComputedAt   string           `json:"computed_at"`
	Terminator   terminator.Curve `json:"terminator"`
	Grayline     terminator.Curve `json:"grayline"`
	Civil        terminator.Curve `json:"civil"`
	Nautical     terminator.Curve `json:"nautical"`
	Astronomical terminator.Curve `json:"astronomical"`
}

type auroraMessage struct {
	Type    string `json:"type"`
	BuiltAt string `json:"built_at"`
	Samples int    `json:"samples"`
}

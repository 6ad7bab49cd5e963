package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/auth"
	"github.com/grayline/grayline/internal/overlay"
	"github.com/grayline/grayline/internal/raster"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const upstreamDoc = `{
	"Observation Time": "2026-03-01T11:55:00Z",
	"Forecast Time": "2026-03-01T12:30:00Z",
	"Data Format": "[Longitude, Latitude, Aurora]",
	"coordinates": [[0, 65, 42], [185, -67, 31], [90, 70, 2]]
}`

type testServer struct {
	handler http.Handler
	engine  *overlay.Engine
	store   *aurora.Store
}

func newTestServer(t *testing.T, authCfg auth.Config) *testServer {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, upstreamDoc)
	}))
	t.Cleanup(upstream.Close)

	store := aurora.NewStore()
	engine, err := overlay.NewEngine(overlay.Config{
		SampleCount: 90,
		GridWidth:   360,
		GridHeight:  181,
		Upscale:     1,
	}, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer("127.0.0.1:0", testLogger(), authCfg,
		engine, store,
		aurora.NewFetcher(upstream.URL),
		aurora.NewCache(t.TempDir(), 3),
		nil, nil)

	return &testServer{
		handler: srv.HTTPServer().Handler,
		engine:  engine,
		store:   store,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

// TestTerminatorQueryValidation verifies parameter validation and the
// sample-count budget on the on-demand curve endpoint.
func TestTerminatorQueryValidation(t *testing.T) {
	ts := newTestServer(t, auth.Config{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"defaults", "", http.StatusOK},
		{"explicit altitude", "?altitude=-6&samples=180", http.StatusOK},
		{"explicit instant", "?at=2026-03-01T12:00:00Z", http.StatusOK},
		{"altitude non-numeric", "?altitude=abc", http.StatusBadRequest},
		{"altitude out of range", "?altitude=91", http.StatusBadRequest},
		{"samples zero", "?samples=0", http.StatusBadRequest},
		{"samples non-numeric", "?samples=xyz", http.StatusBadRequest},
		{"samples over budget", "?samples=99999", http.StatusBadRequest},
		{"bad timestamp", "?at=yesterday", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "GET", "/api/v1/terminator"+tt.query, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus != http.StatusOK {
				var resp map[string]any
				json.NewDecoder(w.Body).Decode(&resp)
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}

			var resp struct {
				ComputedAt string `json:"computed_at"`
				Points     []struct {
					Lat float64 `json:"lat"`
					Lon float64 `json:"lon"`
				} `json:"points"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Points) == 0 {
				t.Error("empty curve")
			}
			if resp.Points[0].Lon != -180 {
				t.Errorf("first lon = %v, want -180", resp.Points[0].Lon)
			}
		})
	}
}

// TestTerminatorBudgetResponse verifies the budget rejection names the limit.
func TestTerminatorBudgetResponse(t *testing.T) {
	ts := newTestServer(t, auth.Config{})

	w := ts.do(t, "GET", "/api/v1/terminator?samples=20000", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["max_samples"] == nil {
		t.Error("expected max_samples field in response")
	}
}

// TestOverlayEndpointsWarmup verifies 503 before the first generation and
// 200 after.
func TestOverlayEndpointsWarmup(t *testing.T) {
	ts := newTestServer(t, auth.Config{})

	for _, path := range []string{
		"/readyz",
		"/api/v1/overlays/terminator",
		"/api/v1/overlays/aurora.png",
		"/api/v1/overlays/aurora/metadata",
	} {
		if w := ts.do(t, "GET", path, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s before warmup: status = %d, want 503", path, w.Code)
		}
	}

	if err := ts.engine.RecomputeGeometry(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if err := ts.engine.RebuildAurora(&aurora.Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Samples:   []raster.Sample{{LonDeg: 0, LatDeg: 65, Value: 42}},
	}); err != nil {
		t.Fatal(err)
	}

	if w := ts.do(t, "GET", "/readyz", nil); w.Code != http.StatusOK {
		t.Errorf("/readyz after warmup: status = %d, want 200", w.Code)
	}

	w := ts.do(t, "GET", "/api/v1/overlays/terminator", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("overlay terminator: status = %d", w.Code)
	}
	var geo struct {
		ComputedAt string          `json:"computed_at"`
		Terminator json.RawMessage `json:"terminator"`
		Grayline   json.RawMessage `json:"grayline"`
		Civil      json.RawMessage `json:"civil"`
	}
	if err := json.NewDecoder(w.Body).Decode(&geo); err != nil {
		t.Fatal(err)
	}
	if geo.ComputedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("computed_at = %q", geo.ComputedAt)
	}
	if len(geo.Terminator) == 0 || len(geo.Grayline) == 0 || len(geo.Civil) == 0 {
		t.Error("missing curves in overlay response")
	}
}

// TestAuroraPNG verifies content type and PNG magic bytes.
func TestAuroraPNG(t *testing.T) {
	ts := newTestServer(t, auth.Config{})
	if err := ts.engine.RebuildAurora(&aurora.Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Samples:   []raster.Sample{{LonDeg: 10, LatDeg: 60, Value: 55}},
	}); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, "GET", "/api/v1/overlays/aurora.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	magic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(w.Body.Bytes(), magic) {
		t.Error("response is not a PNG")
	}
}

// TestAuroraMetadata verifies the metadata payload shape.
func TestAuroraMetadata(t *testing.T) {
	ts := newTestServer(t, auth.Config{})
	obs := time.Date(2026, 3, 1, 11, 55, 0, 0, time.UTC)
	if err := ts.engine.RebuildAurora(&aurora.Dataset{
		Source:          "test",
		FetchedAt:       time.Now(),
		ObservationTime: obs,
		Samples: []raster.Sample{
			{LonDeg: 10, LatDeg: 60, Value: 55},
			{LonDeg: 11, LatDeg: 61, Value: 12},
		},
	}); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, "GET", "/api/v1/overlays/aurora/metadata", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["samples"].(float64) != 2 {
		t.Errorf("samples = %v, want 2", resp["samples"])
	}
	if resp["observation_time"] != "2026-03-01T11:55:00Z" {
		t.Errorf("observation_time = %v", resp["observation_time"])
	}
	if resp["width"].(float64) != 360 || resp["height"].(float64) != 181 {
		t.Errorf("dimensions = %vx%v, want 360x181", resp["width"], resp["height"])
	}
}

// TestRefreshRequiresAuth verifies the refresh endpoint sits behind bearer
// auth while read endpoints stay open.
func TestRefreshRequiresAuth(t *testing.T) {
	ts := newTestServer(t, auth.Config{Enabled: true, Token: "hunter2"})

	if w := ts.do(t, "GET", "/api/v1/terminator", nil); w.Code != http.StatusOK {
		t.Errorf("read endpoint: status = %d, want 200", w.Code)
	}

	if w := ts.do(t, "POST", "/api/v1/aurora/refresh", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("refresh without token: status = %d, want 401", w.Code)
	}

	hdr := http.Header{"Authorization": []string{"Bearer hunter2"}}
	w := ts.do(t, "POST", "/api/v1/aurora/refresh", hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh with token: status = %d (body %s)", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	// Sample [90, 70, 2] falls below the visibility floor but still counts as
	// a parsed sample.
	if resp["samples"].(float64) != 3 {
		t.Errorf("samples = %v, want 3", resp["samples"])
	}

	// The refresh installed a dataset and a raster generation.
	if ts.store.Get() == nil {
		t.Error("store has no dataset after refresh")
	}
	if ts.engine.Aurora() == nil {
		t.Error("engine has no raster after refresh")
	}
}

// TestStatsEndpoint verifies the stats payload tracks generations.
func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, auth.Config{})
	if err := ts.engine.RecomputeGeometry(time.Now()); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, "GET", "/api/v1/overlays/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["geometry_generations"].(float64) < 1 {
		t.Errorf("geometry_generations = %v, want >= 1", resp["geometry_generations"])
	}
}

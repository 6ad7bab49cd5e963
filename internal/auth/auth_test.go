package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret"}
	handler := Middleware(cfg)(okHandler())

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"exempt healthz", "/healthz", "", http.StatusOK},
		{"exempt metrics", "/metrics", "", http.StatusOK},
		{"exempt overlays", "/api/v1/overlays/terminator", "", http.StatusOK},
		{"exempt terminator", "/api/v1/terminator", "", http.StatusOK},
		{"exempt stream", "/api/v1/stream/overlays", "", http.StatusOK},
		{"exempt frontend root", "/", "", http.StatusOK},
		{"exempt static asset", "/app.js", "", http.StatusOK},
		{"refresh without token", "/api/v1/aurora/refresh", "", http.StatusUnauthorized},
		{"refresh wrong token", "/api/v1/aurora/refresh", "Bearer wrong", http.StatusUnauthorized},
		{"refresh malformed header", "/api/v1/aurora/refresh", "secret", http.StatusUnauthorized},
		{"refresh valid token", "/api/v1/aurora/refresh", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	handler := Middleware(Config{Enabled: false})(okHandler())

	req := httptest.NewRequest("POST", "/api/v1/aurora/refresh", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth disabled", w.Code)
	}
}

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
	"studio/internal/storage"
)

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "u1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "u1", "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFileStore(dir, "http://localhost/static")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &infra.Config{
		JWTSecret:     "test-secret",
		DefaultLocale: "en",
		CORSOrigins:   []string{"http://localhost:5173"},
	}
	app := handlers.NewApp(handlers.Deps{Config: cfg, Logger: zerolog.Nop(), Store: store})
	return NewRouter(app, cfg, zerolog.Nop(), nil), cfg.JWTSecret
}

func TestPublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	tests := []struct {
		path   string
		status int
	}{
		{"/v1/healthz", http.StatusOK},
		{"/v1/openapi.json", http.StatusOK},
		{"/v1/docs", http.StatusOK},
		{"/static/u1/a.png", http.StatusOK},
		{"/v1/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatal("missing request id header")
			}
		})
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	router, secret := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/requests", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	token, err := middleware.SignJWT(secret, middleware.TokenClaims{
		Sub:      "u1",
		Audience: "other",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong audience status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/requests", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

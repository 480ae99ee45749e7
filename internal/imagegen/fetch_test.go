package imagegen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"studio/internal/domain"
)

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Hostname()
}

func TestFetcherAllowed(t *testing.T) {
	f := NewFetcher([]string{"images.unsplash.com", ".volces.com", " "}, 0, nil)
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://images.unsplash.com/photo-1", true},
		{"https://IMAGES.unsplash.com/photo-1", true},
		{"https://ark-content.tos.volces.com/a.png", true},
		{"https://volces.com/a.png", true},
		{"https://evilvolces.com/a.png", false},
		{"https://example.com/a.png", false},
		{"ftp://images.unsplash.com/a.png", false},
		{"file:///etc/passwd", false},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		if got := f.Allowed(u); got != tt.want {
			t.Fatalf("Allowed(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFetcherStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("pngdata"))
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher([]string{hostOf(t, srv.URL)}, 0, srv.Client())

	rec := httptest.NewRecorder()
	n, err := f.Stream(context.Background(), srv.URL+"/ok.png", rec)
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if n != 7 || rec.Body.String() != "pngdata" {
		t.Fatalf("body = %q (%d)", rec.Body.String(), n)
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Header().Get("Content-Length") != "7" {
		t.Fatalf("headers = %v", rec.Header())
	}

	_, err = f.Stream(context.Background(), srv.URL+"/missing.png", httptest.NewRecorder())
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestFetcherRejectsHosts(t *testing.T) {
	f := NewFetcher([]string{"cdn.example.com"}, 0, nil)
	if _, _, err := f.Fetch(context.Background(), "https://attacker.example.net/x.png"); !errors.Is(err, domain.ErrUnsupportedHost) {
		t.Fatalf("expected ErrUnsupportedHost, got %v", err)
	}
	if _, _, err := f.Fetch(context.Background(), "not a url"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFetcherRejectsRedirectOutsideAllowlist(t *testing.T) {
	outside := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer outside.Close()
	// 127.0.0.1 vs localhost makes the redirect target a different host.
	target := strings.Replace(outside.URL, "127.0.0.1", "localhost", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer srv.Close()

	f := NewFetcher([]string{hostOf(t, srv.URL)}, 0, srv.Client())
	if _, _, err := f.Fetch(context.Background(), srv.URL+"/a.png"); !errors.Is(err, domain.ErrUnsupportedHost) {
		t.Fatalf("expected ErrUnsupportedHost, got %v", err)
	}
}

func TestFetcherSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if r.URL.Path == "/chunked.png" {
			w.(http.Flusher).Flush()
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := NewFetcher([]string{hostOf(t, srv.URL)}, 16, srv.Client())
	if _, _, err := f.Fetch(context.Background(), srv.URL+"/big.png"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	rec := httptest.NewRecorder()
	n, err := f.Stream(context.Background(), srv.URL+"/chunked.png", rec)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if n != 16 {
		t.Fatalf("streamed %d bytes, want 16", n)
	}
}

package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"studio/internal/domain"
)

// DefaultMaxBytes caps proxied and mirrored images.
const DefaultMaxBytes int64 = 20 << 20

// ErrTooLarge reports a body that exceeded the configured limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// Fetcher downloads images from allowlisted hosts. An entry starting with a
// dot matches the domain and all of its subdomains.
type Fetcher struct {
	client   *http.Client
	hosts    map[string]struct{}
	suffixes []string
	maxBytes int64
}

func NewFetcher(allowlist []string, maxBytes int64, client *http.Client) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	f := &Fetcher{hosts: make(map[string]struct{}), maxBytes: maxBytes}
	for _, entry := range allowlist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "."):
			f.suffixes = append(f.suffixes, entry)
		default:
			f.hosts[entry] = struct{}{}
		}
	}
	base := client
	if base == nil {
		base = &http.Client{Timeout: 60 * time.Second}
	}
	c := *base
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("too many redirects")
		}
		if !f.Allowed(req.URL) {
			return fmt.Errorf("%w: redirect to %s", domain.ErrUnsupportedHost, req.URL.Hostname())
		}
		return nil
	}
	f.client = &c
	return f
}

// Allowed reports whether u may be fetched.
func (f *Fetcher) Allowed(u *url.URL) bool {
	if u == nil || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if _, ok := f.hosts[host]; ok {
		return true
	}
	for _, suffix := range f.suffixes {
		if host == suffix[1:] || strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// Upstream is an open image response. Callers close Body.
type Upstream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Open validates rawURL against the allowlist and starts the download.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (*Upstream, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: malformed url", domain.ErrInvalidInput)
	}
	if !f.Allowed(u) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedHost, u.Hostname())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedHost) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch image: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		resp.Body.Close()
		return nil, ErrTooLarge
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Upstream{Body: resp.Body, ContentType: contentType, ContentLength: resp.ContentLength}, nil
}

// Fetch downloads the whole image.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	up, err := f.Open(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer up.Body.Close()
	data, err := io.ReadAll(io.LimitReader(up.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read image: %v", domain.ErrProviderFailure, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}
	return data, up.ContentType, nil
}

// Stream copies the image at rawURL to w with its content type and length.
// Errors before the first byte is written are returned untouched so the
// caller can still send an error response.
func (f *Fetcher) Stream(ctx context.Context, rawURL string, w http.ResponseWriter) (int64, error) {
	up, err := f.Open(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer up.Body.Close()
	w.Header().Set("Content-Type", up.ContentType)
	if up.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(up.ContentLength, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, io.LimitReader(up.Body, f.maxBytes))
	if err != nil {
		return n, fmt.Errorf("stream image: %w", err)
	}
	if n == f.maxBytes {
		if extra, _ := up.Body.Read(make([]byte, 1)); extra > 0 {
			return n, ErrTooLarge
		}
	}
	return n, nil
}

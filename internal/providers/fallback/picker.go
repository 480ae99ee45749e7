// Package fallback picks stock photo URLs served when image generation fails.
package fallback

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"studio/internal/domain"
)

const picsumHost = "picsum.photos"

// DefaultURLs are product and food shots used when no list is configured.
var DefaultURLs = []string{
	"https://images.unsplash.com/photo-1504674900247-0877df9cc836",
	"https://images.unsplash.com/photo-1512621776951-a57141f2eefd",
	"https://images.unsplash.com/photo-1495474472287-4d71bcdd2085",
	"https://images.unsplash.com/photo-1523275335684-37898b6baf30",
	"https://images.unsplash.com/photo-1505740420928-5e560c06d30e",
	"https://images.unsplash.com/photo-1542291026-7eec264c27ff",
}

// Image is a stock photo selected as a stand-in.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Picker chooses stock photos deterministically from the prompt.
type Picker struct {
	urls []string
}

// NewPicker uses urls, or DefaultURLs when urls is nil. An empty non-nil list
// always yields picsum URLs.
func NewPicker(urls []string) *Picker {
	if urls == nil {
		urls = DefaultURLs
	}
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return &Picker{urls: cleaned}
}

// Pick returns the stand-in for the index-th image of prompt.
func (p *Picker) Pick(prompt, aspect string, index int) Image {
	w, h := domain.AspectDimensions(aspect)
	if index < len(p.urls) {
		start := int(seedFor(prompt, 0)[0]) % len(p.urls)
		raw := p.urls[(start+index)%len(p.urls)]
		return Image{URL: sized(raw, w, h), Width: w, Height: h}
	}
	seed := seedFor(prompt, index)
	return Image{URL: fmt.Sprintf("https://%s/seed/%s/%d/%d", picsumHost, hex.EncodeToString(seed[:6]), w, h), Width: w, Height: h}
}

// Picks returns n distinct stand-ins.
func (p *Picker) Picks(prompt, aspect string, n int) []Image {
	out := make([]Image, n)
	for i := range out {
		out[i] = p.Pick(prompt, aspect, i)
	}
	return out
}

// Hosts lists the hostnames the picker can return, for proxy allowlists.
func (p *Picker) Hosts() []string {
	seen := map[string]struct{}{picsumHost: {}}
	for _, raw := range p.urls {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			seen[strings.ToLower(u.Hostname())] = struct{}{}
		}
	}
	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func seedFor(prompt string, index int) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(prompt)), index)))
}

// sized adds crop parameters to Unsplash URLs and leaves other URLs alone.
func sized(raw string, w, h int) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "unsplash.com") {
		return raw
	}
	q := u.Query()
	q.Set("w", fmt.Sprint(w))
	q.Set("h", fmt.Sprint(h))
	q.Set("fit", "crop")
	q.Set("auto", "format")
	u.RawQuery = q.Encode()
	return u.String()
}

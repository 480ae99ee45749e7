// Package post writes social media copy for generated visuals.
package post

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	maxHashtags        = 8
)

// Platforms the writer tunes copy for.
var Platforms = []string{"instagram", "facebook", "tiktok", "x", "linkedin"}

type Request struct {
	Topic    string
	Tone     string
	Platform string
	Locale   string
	ImageURL string
}

type Post struct {
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
	Platform     string   `json:"platform"`
	Locale       string   `json:"locale"`
	Provider     string   `json:"provider"`
}

type Writer interface {
	Write(ctx context.Context, req Request) (*Post, error)
}

// Normalize fills defaults and lowercases the platform.
func Normalize(req Request) Request {
	req.Topic = strings.TrimSpace(req.Topic)
	req.Tone = strings.TrimSpace(req.Tone)
	if req.Tone == "" {
		req.Tone = "friendly"
	}
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if req.Platform == "" {
		req.Platform = "instagram"
	}
	req.Locale = strings.TrimSpace(req.Locale)
	if req.Locale == "" {
		req.Locale = "en"
	}
	return req
}

// StaticWriter builds template copy without a model.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) Write(_ context.Context, req Request) (*Post, error) {
	req = Normalize(req)
	tag, err := language.Parse(req.Locale)
	if err != nil {
		tag = language.English
	}
	title := cases.Title(tag).String(req.Topic)

	var caption, cta string
	if base, _ := tag.Base(); base.String() == "id" {
		caption = fmt.Sprintf("%s hadir untuk kamu! Dibuat dengan sepenuh hati, cocok untuk menemani harimu.", title)
		cta = "Pesan sekarang lewat DM atau link di bio!"
	} else {
		caption = fmt.Sprintf("Meet %s. Crafted with care and made to brighten your day.", title)
		cta = "Order now via DM or the link in bio!"
	}
	return &Post{
		Caption:      caption,
		Hashtags:     NormalizeHashtags(append(strings.Fields(req.Topic), "umkm", "smallbusiness"), tag),
		CallToAction: cta,
		Platform:     req.Platform,
		Locale:       req.Locale,
		Provider:     staticProviderName,
	}, nil
}

// NormalizeHashtags strips punctuation, lowercases, prefixes '#', drops
// duplicates and caps the list.
func NormalizeHashtags(raw []string, tag language.Tag) []string {
	lower := cases.Lower(tag)
	seen := make(map[string]struct{})
	var out []string
	for _, h := range raw {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, lower.String(h))
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, "#"+cleaned)
		if len(out) == maxHashtags {
			break
		}
	}
	return out
}

var _ Writer = (*StaticWriter)(nil)

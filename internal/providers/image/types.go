// Package image holds the image generation providers.
package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// SourceImage is a reference photo passed to providers that support editing.
type SourceImage struct {
	URL      string
	MIMEType string
	Data     []byte
}

// GenerateRequest asks for one image. Index and Total identify the variation
// when several images are produced for the same prompt.
type GenerateRequest struct {
	Prompt      string
	AspectRatio string
	RequestID   string
	Index       int
	Total       int
	SourceImage *SourceImage
}

// Asset is a generated image. Providers set URL for hosted results and Data
// for inline bytes.
type Asset struct {
	URL      string
	MIMEType string
	Width    int
	Height   int
	Data     []byte
	Provider string
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// Seed derives a stable positive seed from the request so retries of the
// same variation render the same image.
func Seed(req GenerateRequest) int {
	return deterministicSeed(req.RequestID, req.Prompt, req.AspectRatio, req.Index)
}

func deterministicSeed(values ...any) int {
	if len(values) == 0 {
		return 0
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4])
	value := int(n % 2147483647)
	if value <= 0 {
		fallback := binary.BigEndian.Uint32(sum[4:8]) % 2147483647
		if fallback == 0 {
			fallback = 1
		}
		value = int(fallback)
	}
	return value
}

// NormalizeFormat maps loose MIME types onto the ones stored with images.
func NormalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}

func variationPrompt(prompt string, total, index int) string {
	trimmed := strings.TrimSpace(prompt)
	if total <= 1 {
		return trimmed
	}
	return fmt.Sprintf("%s\nVariation #%d of %d for the same campaign.", trimmed, index+1, total)
}

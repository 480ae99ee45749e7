// Package gemini wraps google.golang.org/genai for the providers that talk to
// Gemini: client construction, content builders and response decoding.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ContentGenerator is the slice of genai.Models the providers depend on.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Gemini API client. A custom BaseURL routes calls through a proxy.
func NewClient(ctx context.Context, opts Options) (*genai.Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// Models returns the content generator of client, or nil when client is nil.
func Models(client *genai.Client) ContentGenerator {
	if client == nil {
		return nil
	}
	return client.Models
}

// InlineImage is image input sent with a prompt. URL is used when Data is empty.
type InlineImage struct {
	Data     []byte
	MIMEType string
	URL      string
}

// UserContent builds a single user turn with the text first and images after.
func UserContent(text string, images ...InlineImage) []*genai.Content {
	parts := []*genai.Part{{Text: text}}
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		switch {
		case len(img.Data) > 0:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: img.Data}})
		case img.URL != "":
			parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: img.URL, MIMEType: mime}})
		}
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
}

// SystemInstruction wraps text as a system instruction content.
func SystemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

// ResponseText concatenates the text parts of every candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// ResponseImages returns the inline image blobs of every candidate.
func ResponseImages(resp *genai.GenerateContentResponse) []*genai.Blob {
	if resp == nil {
		return nil
	}
	var out []*genai.Blob
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out = append(out, part.InlineData)
		}
	}
	return out
}

// FinishReason reports the first non-empty finish reason, used in error messages.
func FinishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate != nil && candidate.FinishReason != "" {
			return string(candidate.FinishReason)
		}
	}
	return ""
}

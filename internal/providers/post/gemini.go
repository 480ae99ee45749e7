package post

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"google.golang.org/genai"

	"studio/internal/providers/gemini"
)

type GeminiOptions struct {
	Models   gemini.ContentGenerator
	Model    string
	Fallback Writer
}

// GeminiWriter asks Gemini for JSON post copy.
type GeminiWriter struct {
	models   gemini.ContentGenerator
	model    string
	fallback Writer
}

type modelPost struct {
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
}

func NewGeminiWriter(opts GeminiOptions) *GeminiWriter {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiWriter{models: opts.Models, model: model, fallback: opts.Fallback}
}

func (g *GeminiWriter) Write(ctx context.Context, req Request) (*Post, error) {
	req = Normalize(req)
	if g.models == nil {
		return g.useFallback(ctx, req, errors.New("gemini writer not configured"))
	}
	resp, err := g.models.GenerateContent(ctx, g.model, gemini.UserContent(buildPrompt(req)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.8),
	})
	if err != nil {
		return g.useFallback(ctx, req, fmt.Errorf("gemini post: %w", err))
	}
	payload, err := gemini.DecodeJSON[modelPost](gemini.ResponseText(resp))
	if err != nil {
		return g.useFallback(ctx, req, fmt.Errorf("gemini post: decode: %w", err))
	}
	if strings.TrimSpace(payload.Caption) == "" {
		return g.useFallback(ctx, req, errors.New("gemini post: empty caption"))
	}
	tag, err := language.Parse(req.Locale)
	if err != nil {
		tag = language.English
	}
	return &Post{
		Caption:      strings.TrimSpace(payload.Caption),
		Hashtags:     NormalizeHashtags(payload.Hashtags, tag),
		CallToAction: strings.TrimSpace(payload.CallToAction),
		Platform:     req.Platform,
		Locale:       req.Locale,
		Provider:     geminiProviderName,
	}, nil
}

func (g *GeminiWriter) useFallback(ctx context.Context, req Request, cause error) (*Post, error) {
	if g.fallback == nil {
		return nil, cause
	}
	return g.fallback.Write(ctx, req)
}

func buildPrompt(req Request) string {
	sb := &strings.Builder{}
	sb.WriteString("You write social media posts for small businesses. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"caption":string,"hashtags":string[],"call_to_action":string}`)
	fmt.Fprintf(sb, ". Platform: %s. Tone: %s. Write in locale '%s'. Topic: %q.", req.Platform, req.Tone, req.Locale, req.Topic)
	if req.ImageURL != "" {
		fmt.Fprintf(sb, " The post accompanies the image at %s.", req.ImageURL)
	}
	sb.WriteString(" Keep the caption under 60 words and give at most 8 hashtags without spaces.")
	return sb.String()
}

var _ Writer = (*GeminiWriter)(nil)

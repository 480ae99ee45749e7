package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"studio/internal/providers/gemini"
)

type GeminiOptions struct {
	Models   gemini.ContentGenerator
	Model    string
	Fallback Refiner
}

// GeminiRefiner asks a multimodal Gemini model to describe and expand the prompt.
type GeminiRefiner struct {
	models   gemini.ContentGenerator
	model    string
	fallback Refiner
}

func NewGeminiRefiner(opts GeminiOptions) *GeminiRefiner {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiRefiner{models: opts.Models, model: model, fallback: opts.Fallback}
}

func (g *GeminiRefiner) Refine(ctx context.Context, req RefineRequest) (*Refinement, error) {
	if g.models == nil {
		return g.useFallback(ctx, req, errors.New("gemini refiner not configured"))
	}
	var images []gemini.InlineImage
	if req.Image != nil {
		images = append(images, gemini.InlineImage{Data: req.Image.Data, MIMEType: req.Image.MIMEType, URL: req.Image.URL})
	}
	resp, err := g.models.GenerateContent(ctx, g.model, gemini.UserContent(req.Prompt, images...), &genai.GenerateContentConfig{
		SystemInstruction:  gemini.SystemInstruction(instruction(req)),
		ResponseModalities: []string{"TEXT"},
		Temperature:        genai.Ptr[float32](0.4),
	})
	if err != nil {
		return g.useFallback(ctx, req, fmt.Errorf("gemini refine: %w", err))
	}
	text := cleanRefined(gemini.ResponseText(resp))
	if text == "" {
		return g.useFallback(ctx, req, fmt.Errorf("gemini refine: empty response (finish reason %q)", gemini.FinishReason(resp)))
	}
	return &Refinement{Prompt: text, Provider: providerGemini}, nil
}

func (g *GeminiRefiner) useFallback(ctx context.Context, req RefineRequest, cause error) (*Refinement, error) {
	if g.fallback == nil {
		return nil, cause
	}
	return g.fallback.Refine(ctx, req)
}

var _ Refiner = (*GeminiRefiner)(nil)

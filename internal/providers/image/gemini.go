package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"studio/internal/domain"
	"studio/internal/providers/gemini"
)

const geminiProviderName = "gemini"

type GeminiOptions struct {
	Models gemini.ContentGenerator
	Model  string
}

// GeminiGenerator renders images with Gemini's native image output. Results
// come back as inline bytes that the caller stores.
type GeminiGenerator struct {
	models gemini.ContentGenerator
	model  string
}

func NewGeminiGenerator(opts GeminiOptions) (*GeminiGenerator, error) {
	if opts.Models == nil {
		return nil, errors.New("gemini image generator needs a client")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	return &GeminiGenerator{models: opts.Models, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	var images []gemini.InlineImage
	if src := req.SourceImage; src != nil {
		images = append(images, gemini.InlineImage{Data: src.Data, MIMEType: src.MIMEType, URL: src.URL})
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = domain.DefaultAspectRatio
	}
	resp, err := g.models.GenerateContent(ctx, g.model,
		gemini.UserContent(variationPrompt(req.Prompt, req.Total, req.Index), images...),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &genai.ImageConfig{AspectRatio: aspect},
		})
	if err != nil {
		return nil, fmt.Errorf("gemini image: %w", err)
	}
	blobs := gemini.ResponseImages(resp)
	if len(blobs) == 0 {
		return nil, fmt.Errorf("gemini image: no image returned (finish reason %q)", gemini.FinishReason(resp))
	}
	width, height := domain.AspectDimensions(aspect)
	return &Asset{
		MIMEType: NormalizeFormat(blobs[0].MIMEType),
		Width:    width,
		Height:   height,
		Data:     blobs[0].Data,
		Provider: geminiProviderName,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)

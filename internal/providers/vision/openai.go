package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Fallback   Refiner
}

// OpenAIRefiner refines prompts through any OpenAI-compatible chat endpoint
// that accepts image_url content parts.
type OpenAIRefiner struct {
	client   *openai.Client
	model    string
	fallback Refiner
}

func NewOpenAIRefiner(opts OpenAIOptions) (*OpenAIRefiner, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRefiner{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		fallback: opts.Fallback,
	}, nil
}

func (o *OpenAIRefiner) Refine(ctx context.Context, req RefineRequest) (*Refinement, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
	if url := imageURL(req.Image); url != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction(req)},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return o.useFallback(ctx, req, fmt.Errorf("openai refine: %w", err))
	}
	if len(resp.Choices) == 0 {
		return o.useFallback(ctx, req, errors.New("openai refine: no choices"))
	}
	text := cleanRefined(resp.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, errors.New("openai refine: empty response"))
	}
	return &Refinement{Prompt: text, Provider: providerOpenAI}, nil
}

func (o *OpenAIRefiner) useFallback(ctx context.Context, req RefineRequest, cause error) (*Refinement, error) {
	if o.fallback == nil {
		return nil, cause
	}
	return o.fallback.Refine(ctx, req)
}

// imageURL prefers inline bytes as a data URL so private images work.
func imageURL(img *Image) string {
	if img == nil {
		return ""
	}
	if len(img.Data) > 0 {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	}
	return img.URL
}

var _ Refiner = (*OpenAIRefiner)(nil)

package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const seedreamProviderName = "seedream"

// seedreamSizes lists output sizes per aspect ratio, all within the model's
// pixel budget.
var seedreamSizes = map[string][2]int{
	"1:1":  {2048, 2048},
	"4:3":  {2304, 1728},
	"3:4":  {1728, 2304},
	"16:9": {2560, 1440},
	"9:16": {1440, 2560},
	"3:2":  {2496, 1664},
	"2:3":  {1664, 2496},
	"21:9": {3024, 1296},
}

// SeedreamSize returns width and height for an aspect ratio, square when unknown.
func SeedreamSize(aspect string) (int, int) {
	size, ok := seedreamSizes[strings.TrimSpace(aspect)]
	if !ok {
		size = seedreamSizes["1:1"]
	}
	return size[0], size[1]
}

type SeedreamOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// SeedreamGenerator calls the OpenAI-compatible images endpoint of the
// Seedream model.
type SeedreamGenerator struct {
	client *openai.Client
	model  string
}

func NewSeedreamGenerator(opts SeedreamOptions) (*SeedreamGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("seedream api key is required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("seedream base url is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "seedream-4-0-250828"
	}
	return &SeedreamGenerator{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (g *SeedreamGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	width, height := SeedreamSize(req.AspectRatio)
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         variationPrompt(req.Prompt, req.Total, req.Index),
		Model:          g.model,
		N:              1,
		Size:           fmt.Sprintf("%dx%d", width, height),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("seedream generate: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("seedream generate: empty data")
	}
	item := resp.Data[0]
	asset := &Asset{
		URL:      item.URL,
		MIMEType: "image/jpeg",
		Width:    width,
		Height:   height,
		Provider: seedreamProviderName,
	}
	if asset.URL == "" && item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("seedream generate: decode image: %w", err)
		}
		asset.Data = data
	}
	if asset.URL == "" && len(asset.Data) == 0 {
		return nil, errors.New("seedream generate: response has no image")
	}
	return asset, nil
}

func (g *SeedreamGenerator) Model() string { return g.model }

var _ Generator = (*SeedreamGenerator)(nil)

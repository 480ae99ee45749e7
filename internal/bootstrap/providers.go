// Package bootstrap wires the AI providers shared by the API and the worker.
package bootstrap

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/providers/fallback"
	"studio/internal/providers/gemini"
	"studio/internal/providers/image"
	"studio/internal/providers/post"
	"studio/internal/providers/video"
	"studio/internal/providers/vision"
)

// providerHosts are the CDN suffixes generated assets are served from.
var providerHosts = []string{".volces.com", ".bytepluses.com", ".byteplus.com", ".googleusercontent.com", ".picsum.photos", "images.unsplash.com"}

// Keys holds the resolved provider API keys.
type Keys struct {
	Gemini   string
	OpenAI   string
	Seedream string
}

// ResolveKeys prefers environment keys and falls back to the
// integration_tokens table. Lookup failures are logged and leave the key empty.
func ResolveKeys(ctx context.Context, store *credentials.Store, cfg *infra.Config, logger zerolog.Logger) Keys {
	resolve := func(provider, env string) string {
		if store == nil {
			return strings.TrimSpace(env)
		}
		key, err := store.Resolve(ctx, provider, env)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("load api key from store")
			return strings.TrimSpace(env)
		}
		return key
	}
	return Keys{
		Gemini:   resolve(credentials.ProviderGemini, cfg.GeminiAPIKey),
		OpenAI:   resolve(credentials.ProviderOpenAI, cfg.OpenAIAPIKey),
		Seedream: resolve(credentials.ProviderSeedream, cfg.SeedreamAPIKey),
	}
}

// Providers is the configured set of generators. Gemini and Video are nil
// when their keys are missing.
type Providers struct {
	Refiner vision.Refiner
	Images  image.Chain
	Gemini  image.Generator
	Video   video.Generator
	Posts   post.Writer
	Picker  *fallback.Picker

	cfg    *infra.Config
	logger zerolog.Logger
}

// NewProviders builds every provider a key is available for. Missing keys
// degrade to the static refiner, static post writer and stock photos.
func NewProviders(ctx context.Context, cfg *infra.Config, keys Keys, logger zerolog.Logger) *Providers {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	p := &Providers{
		Refiner: vision.NewStaticRefiner(),
		Posts:   post.NewStaticWriter(),
		Picker:  fallback.NewPicker(cfg.FallbackImageURLs),
		cfg:     cfg,
		logger:  logger,
	}

	var models gemini.ContentGenerator
	if keys.Gemini != "" {
		gc, err := gemini.NewClient(ctx, gemini.Options{APIKey: keys.Gemini, BaseURL: cfg.GeminiBaseURL, HTTPClient: client})
		if err != nil {
			logger.Warn().Err(err).Msg("gemini disabled")
		} else {
			models = gemini.Models(gc)
		}
	} else {
		logger.Warn().Msg("gemini api key missing, using static refiner and post writer")
	}

	if keys.Seedream != "" {
		seedream, err := image.NewSeedreamGenerator(image.SeedreamOptions{
			APIKey:     keys.Seedream,
			BaseURL:    cfg.SeedreamBaseURL,
			Model:      cfg.SeedreamModel,
			HTTPClient: client,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("seedream disabled")
		} else {
			p.Images = append(p.Images, seedream)
		}
		seedance, err := video.NewSeedanceGenerator(video.SeedanceOptions{
			APIKey:       keys.Seedream,
			BaseURL:      cfg.SeedreamBaseURL,
			Model:        cfg.SeedanceModel,
			HTTPClient:   client,
			PollInterval: cfg.VideoPollInterval,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("seedance disabled")
		} else {
			p.Video = seedance
		}
	} else {
		logger.Warn().Msg("seedream api key missing, image requests fall back to gemini or stock photos")
	}

	if models != nil {
		if gen, err := image.NewGeminiGenerator(image.GeminiOptions{Models: models, Model: cfg.GeminiImageModel}); err == nil {
			p.Gemini = gen
			p.Images = append(p.Images, gen)
		}
		p.Posts = post.NewGeminiWriter(post.GeminiOptions{Models: models, Model: cfg.GeminiModel, Fallback: post.NewStaticWriter()})
	}

	switch cfg.RefinerProvider {
	case "openai":
		if keys.OpenAI == "" {
			logger.Warn().Msg("openai api key missing, using static refiner")
			break
		}
		ref, err := vision.NewOpenAIRefiner(vision.OpenAIOptions{
			APIKey:     keys.OpenAI,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			HTTPClient: client,
			Fallback:   vision.NewStaticRefiner(),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("openai refiner disabled")
			break
		}
		p.Refiner = ref
	case "static":
	default:
		if models != nil {
			p.Refiner = vision.NewGeminiRefiner(vision.GeminiOptions{Models: models, Model: cfg.GeminiModel, Fallback: vision.NewStaticRefiner()})
		}
	}
	return p
}

// Pipeline is the refine-then-generate pipeline over the provider chain.
func (p *Providers) Pipeline() *imagegen.Pipeline {
	return imagegen.NewPipeline(imagegen.Options{
		Refiner:           p.Refiner,
		Generator:         p.Images,
		Fallback:          p.Picker,
		FallbackEnabled:   p.cfg.FallbackEnabled,
		RefineTextPrompts: p.cfg.RefineTextPrompt,
		RatePerSecond:     p.cfg.GenerationRatePerSecond,
		Logger:            p.logger,
	})
}

// GeminiPipeline renders with Gemini native image output only and never
// falls back. It is nil without a Gemini key.
func (p *Providers) GeminiPipeline() *imagegen.Pipeline {
	if p.Gemini == nil {
		return nil
	}
	return imagegen.NewPipeline(imagegen.Options{
		Refiner:           p.Refiner,
		Generator:         p.Gemini,
		RefineTextPrompts: p.cfg.RefineTextPrompt,
		RatePerSecond:     p.cfg.GenerationRatePerSecond,
		Logger:            p.logger,
	})
}

// Fetcher downloads from configured hosts, fallback hosts and provider CDNs.
func (p *Providers) Fetcher() *imagegen.Fetcher {
	allow := append([]string{}, p.cfg.ImageSourceAllowlist...)
	allow = append(allow, p.Picker.Hosts()...)
	allow = append(allow, providerHosts...)
	return imagegen.NewFetcher(allow, p.cfg.ProxyMaxBytes, &http.Client{Timeout: p.cfg.ProviderTimeout})
}

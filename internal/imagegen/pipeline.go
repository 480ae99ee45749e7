package imagegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"studio/internal/domain"
	"studio/internal/providers/fallback"
	"studio/internal/providers/image"
	"studio/internal/providers/vision"
)

const (
	defaultCacheTTL  = 30 * time.Minute
	providerFallback = "fallback"
)

type Options struct {
	Refiner   vision.Refiner
	Generator image.Generator
	Fallback  *fallback.Picker
	// FallbackEnabled serves stock photos instead of failing when the
	// generator errors.
	FallbackEnabled bool
	// RefineTextPrompts runs the vision step for prompts without an image.
	RefineTextPrompts bool
	RatePerSecond     float64
	CacheTTL          time.Duration
	Logger            zerolog.Logger
}

// Pipeline refines prompts and renders images.
type Pipeline struct {
	refiner         vision.Refiner
	generator       image.Generator
	picker          *fallback.Picker
	fallbackEnabled bool
	refineText      bool
	limiter         *rate.Limiter
	cache           *cache.Cache
	logger          zerolog.Logger
}

func NewPipeline(opts Options) *Pipeline {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limit := rate.Inf
	burst := domain.MaxQuantity
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	picker := opts.Fallback
	if picker == nil {
		picker = fallback.NewPicker(nil)
	}
	refiner := opts.Refiner
	if refiner == nil {
		refiner = vision.NewStaticRefiner()
	}
	return &Pipeline{
		refiner:         refiner,
		generator:       opts.Generator,
		picker:          picker,
		fallbackEnabled: opts.FallbackEnabled,
		refineText:      opts.RefineTextPrompts,
		limiter:         rate.NewLimiter(limit, burst),
		cache:           cache.New(ttl, 2*ttl),
		logger:          opts.Logger.With().Str("component", "imagegen").Logger(),
	}
}

// Generate validates req, refines its prompt and renders the images. When
// rendering fails and fallback is enabled the result carries stock photos.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	prompt, err := domain.NormalizePrompt(req.Prompt)
	if err != nil {
		return nil, err
	}
	aspect, err := domain.NormalizeAspectRatio(req.AspectRatio)
	if err != nil {
		return nil, err
	}
	quantity := domain.ClampQuantity(req.Quantity)

	refined := prompt
	if !req.SkipRefine && (!req.Image.empty() || p.refineText) {
		r, err := p.refine(ctx, prompt, req.Style, aspect, req.Locale, req.Image)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("prompt refinement failed, using original prompt")
		} else {
			refined = r.Prompt
		}
	}

	req.notify(StageRefined)

	result := &Result{RefinedPrompt: refined, AspectRatio: aspect, Quantity: quantity}
	images, err := p.render(ctx, req, refined, aspect, quantity)
	if err == nil {
		result.Images = images
		result.Provider = images[0].Provider
		req.notify(StageRendered)
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !p.fallbackEnabled {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	p.logger.Warn().Err(err).Str("request_id", req.RequestID).Int("quantity", quantity).Msg("image generation failed, serving fallback images")
	result.Fallback = true
	result.FallbackReason = err.Error()
	result.Provider = providerFallback
	for _, pick := range p.picker.Picks(prompt, aspect, quantity) {
		result.Images = append(result.Images, GeneratedImage{URL: pick.URL, Width: pick.Width, Height: pick.Height, Provider: providerFallback})
	}
	req.notify(StageRendered)
	return result, nil
}

// Refine runs the vision step alone. Unlike Generate it reports refiner
// errors to the caller.
func (p *Pipeline) Refine(ctx context.Context, prompt, style, aspect string, img *SourceImage) (*vision.Refinement, error) {
	prompt, err := domain.NormalizePrompt(prompt)
	if err != nil {
		return nil, err
	}
	aspect, err = domain.NormalizeAspectRatio(aspect)
	if err != nil {
		return nil, err
	}
	r, err := p.refine(ctx, prompt, style, aspect, "", img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return r, nil
}

func (p *Pipeline) refine(ctx context.Context, prompt, style, aspect, locale string, img *SourceImage) (*vision.Refinement, error) {
	key := cacheKey(prompt, style, aspect, locale, img)
	if cached, ok := p.cache.Get(key); ok {
		return cached.(*vision.Refinement), nil
	}
	req := vision.RefineRequest{Prompt: prompt, Style: style, AspectRatio: aspect, Locale: locale}
	if !img.empty() {
		req.Image = &vision.Image{Data: img.Data, MIMEType: img.MIMEType, URL: img.URL}
	}
	r, err := p.refiner.Refine(ctx, req)
	if err != nil {
		return nil, err
	}
	if r == nil || strings.TrimSpace(r.Prompt) == "" {
		return nil, errors.New("refiner returned an empty prompt")
	}
	// A static result from a model-backed refiner is a degraded answer; the
	// next call should reach the model again.
	if _, static := p.refiner.(*vision.StaticRefiner); static || r.Provider != vision.ProviderStatic {
		p.cache.SetDefault(key, r)
	}
	return r, nil
}

func (p *Pipeline) render(ctx context.Context, req GenerateRequest, prompt, aspect string, quantity int) ([]GeneratedImage, error) {
	if p.generator == nil {
		return nil, errors.New("no image generator configured")
	}
	var source *image.SourceImage
	if !req.Image.empty() {
		source = &image.SourceImage{URL: req.Image.URL, MIMEType: req.Image.MIMEType, Data: req.Image.Data}
	}

	images := make([]GeneratedImage, quantity)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < quantity; i++ {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			start := time.Now()
			asset, err := p.generator.Generate(gctx, image.GenerateRequest{
				Prompt:      prompt,
				AspectRatio: aspect,
				RequestID:   req.RequestID,
				Index:       i,
				Total:       quantity,
				SourceImage: source,
			})
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			if asset == nil || (asset.URL == "" && len(asset.Data) == 0) {
				return fmt.Errorf("image %d: provider returned no image", i+1)
			}
			w, h := asset.Width, asset.Height
			if w == 0 || h == 0 {
				w, h = domain.AspectDimensions(aspect)
			}
			images[i] = GeneratedImage{
				URL:      asset.URL,
				Width:    w,
				Height:   h,
				MIMEType: image.NormalizeFormat(asset.MIMEType),
				Provider: asset.Provider,
				Data:     asset.Data,
			}
			p.logger.Debug().
				Str("request_id", req.RequestID).
				Int("index", i).
				Str("provider", asset.Provider).
				Dur("latency", time.Since(start)).
				Msg("image generated")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func cacheKey(prompt, style, aspect, locale string, img *SourceImage) string {
	h := sha256.New()
	for _, part := range []string{prompt, style, aspect, locale} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if !img.empty() {
		h.Write([]byte(img.URL))
		h.Write([]byte{0})
		h.Write(img.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

package imagegen

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/providers/fallback"
	"studio/internal/providers/image"
	"studio/internal/providers/vision"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
	failAt  int
	calls   atomic.Int32
}

func (s *stubGenerator) Generate(_ context.Context, req image.GenerateRequest) (*image.Asset, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()
	if s.err != nil && (s.failAt == 0 || s.failAt == n) {
		return nil, s.err
	}
	return &image.Asset{
		URL:      "https://cdn.example.com/" + req.RequestID + "/" + string(rune('a'+req.Index)) + ".jpeg",
		MIMEType: "image/jpeg",
		Provider: "seedream",
	}, nil
}

type stubRefiner struct {
	calls    atomic.Int32
	err      error
	provider string
	last     vision.RefineRequest
}

func (s *stubRefiner) Refine(_ context.Context, req vision.RefineRequest) (*vision.Refinement, error) {
	s.calls.Add(1)
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	provider := s.provider
	if provider == "" {
		provider = "stub"
	}
	return &vision.Refinement{Prompt: "refined: " + req.Prompt, Provider: provider}, nil
}

func newTestPipeline(gen image.Generator, ref vision.Refiner, fallbackEnabled bool) *Pipeline {
	return NewPipeline(Options{
		Refiner:         ref,
		Generator:       gen,
		Fallback:        fallback.NewPicker([]string{}),
		FallbackEnabled: fallbackEnabled,
		Logger:          zerolog.Nop(),
	})
}

func TestGenerateValidation(t *testing.T) {
	p := newTestPipeline(&stubGenerator{}, &stubRefiner{}, true)
	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{name: "empty prompt", req: GenerateRequest{Prompt: "   "}},
		{name: "long prompt", req: GenerateRequest{Prompt: strings.Repeat("a", domain.MaxPromptRunes+1)}},
		{name: "bad aspect", req: GenerateRequest{Prompt: "cake", AspectRatio: "5:7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Generate(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrInvalidPrompt) {
				t.Fatalf("expected ErrInvalidPrompt, got %v", err)
			}
		})
	}
}

func TestGenerateRefinesWithImageAndClampsQuantity(t *testing.T) {
	gen := &stubGenerator{}
	ref := &stubRefiner{}
	p := newTestPipeline(gen, ref, true)

	res, err := p.Generate(context.Background(), GenerateRequest{
		Prompt:    "  coffee cup  ",
		Image:     &SourceImage{Data: []byte("jpeg"), MIMEType: "image/jpeg"},
		Quantity:  9,
		RequestID: "r1",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Quantity != domain.MaxQuantity || len(res.Images) != domain.MaxQuantity {
		t.Fatalf("quantity = %d images = %d", res.Quantity, len(res.Images))
	}
	if res.AspectRatio != domain.DefaultAspectRatio {
		t.Fatalf("aspect = %q", res.AspectRatio)
	}
	if res.RefinedPrompt != "refined: coffee cup" {
		t.Fatalf("refined prompt = %q", res.RefinedPrompt)
	}
	if res.Fallback || res.Provider != "seedream" {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, prompt := range gen.prompts {
		if prompt != "refined: coffee cup" {
			t.Fatalf("generator got prompt %q", prompt)
		}
	}
	seen := map[string]bool{}
	for _, img := range res.Images {
		if img.Width != 1024 || img.Height != 1024 {
			t.Fatalf("dimensions = %dx%d", img.Width, img.Height)
		}
		seen[img.URL] = true
	}
	if len(seen) != domain.MaxQuantity {
		t.Fatalf("expected distinct urls, got %v", res.URLs())
	}
	if ref.last.Image == nil || string(ref.last.Image.Data) != "jpeg" {
		t.Fatalf("refiner did not receive the image")
	}
}

func TestGenerateSkipsRefineForTextPrompts(t *testing.T) {
	gen := &stubGenerator{}
	ref := &stubRefiner{}
	p := newTestPipeline(gen, ref, true)

	res, err := p.Generate(context.Background(), GenerateRequest{Prompt: "bakery storefront"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if ref.calls.Load() != 0 {
		t.Fatalf("refiner called for text-only prompt")
	}
	if res.RefinedPrompt != "bakery storefront" {
		t.Fatalf("refined prompt = %q", res.RefinedPrompt)
	}
}

func TestGenerateCachesRefinement(t *testing.T) {
	ref := &stubRefiner{}
	p := NewPipeline(Options{Refiner: ref, Generator: &stubGenerator{}, RefineTextPrompts: true, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "tea", Style: "minimal"}); err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}
	if got := ref.calls.Load(); got != 1 {
		t.Fatalf("refiner calls = %d, want 1", got)
	}
	if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "tea", Style: "vintage"}); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got := ref.calls.Load(); got != 2 {
		t.Fatalf("refiner calls = %d, want 2", got)
	}
}

func TestGenerateRefineFailureIsNotFatal(t *testing.T) {
	ref := &stubRefiner{err: errors.New("vision down")}
	p := newTestPipeline(&stubGenerator{}, ref, false)

	res, err := p.Generate(context.Background(), GenerateRequest{Prompt: "shoes", Image: &SourceImage{URL: "https://cdn.example.com/shoe.png"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.RefinedPrompt != "shoes" {
		t.Fatalf("refined prompt = %q", res.RefinedPrompt)
	}
}

func TestGenerateFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exhausted"), failAt: 2}
	p := newTestPipeline(gen, &stubRefiner{}, true)

	res, err := p.Generate(context.Background(), GenerateRequest{Prompt: "noodles", AspectRatio: "16:9", Quantity: 2})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !res.Fallback || res.Provider != "fallback" {
		t.Fatalf("expected fallback result, got %+v", res)
	}
	if !strings.Contains(res.FallbackReason, "quota exhausted") {
		t.Fatalf("fallback reason = %q", res.FallbackReason)
	}
	if len(res.Images) != 2 {
		t.Fatalf("images = %d", len(res.Images))
	}
	for _, img := range res.Images {
		if !strings.HasPrefix(img.URL, "https://picsum.photos/seed/") || !strings.HasSuffix(img.URL, "/1280/720") {
			t.Fatalf("unexpected fallback url %q", img.URL)
		}
	}
}

func TestGenerateProviderFailureWithoutFallback(t *testing.T) {
	p := newTestPipeline(&stubGenerator{err: errors.New("boom")}, &stubRefiner{}, false)
	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "noodles"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	p := newTestPipeline(&stubGenerator{err: errors.New("boom")}, &stubRefiner{}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Generate(ctx, GenerateRequest{Prompt: "noodles"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRefineReportsErrors(t *testing.T) {
	p := newTestPipeline(&stubGenerator{}, &stubRefiner{err: errors.New("nope")}, true)
	if _, err := p.Refine(context.Background(), "bread", "", "", nil); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}

	ok := newTestPipeline(&stubGenerator{}, &stubRefiner{}, true)
	r, err := ok.Refine(context.Background(), "bread", "rustic", "4:3", nil)
	if err != nil || r.Prompt != "refined: bread" {
		t.Fatalf("Refine = %+v, %v", r, err)
	}
}

func TestCacheKeyDependsOnImageAndLocale(t *testing.T) {
	keys := []string{
		cacheKey("p", "s", "1:1", "en", &SourceImage{Data: []byte("one")}),
		cacheKey("p", "s", "1:1", "en", &SourceImage{Data: []byte("two")}),
		cacheKey("p", "s", "1:1", "en", nil),
		cacheKey("p", "s", "1:1", "id", nil),
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("cache keys collide: %v", keys)
		}
		seen[k] = true
	}
}

func TestGenerateCacheSeparatesLocales(t *testing.T) {
	ref := &stubRefiner{}
	p := NewPipeline(Options{Refiner: ref, Generator: &stubGenerator{}, RefineTextPrompts: true, Logger: zerolog.Nop()})
	for _, locale := range []string{"en", "id", "en"} {
		if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "tea", Locale: locale}); err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}
	if got := ref.calls.Load(); got != 2 {
		t.Fatalf("refiner calls = %d, want 2", got)
	}
}

func TestGenerateDoesNotCacheDegradedRefinement(t *testing.T) {
	ref := &stubRefiner{provider: vision.ProviderStatic}
	p := NewPipeline(Options{Refiner: ref, Generator: &stubGenerator{}, RefineTextPrompts: true, Logger: zerolog.Nop()})
	for i := 0; i < 2; i++ {
		if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "tea"}); err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}
	if got := ref.calls.Load(); got != 2 {
		t.Fatalf("refiner calls = %d, want 2", got)
	}
}

func TestGenerateReportsStages(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "rendered", gen: &stubGenerator{}},
		{name: "fallback", gen: &stubGenerator{err: errors.New("down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(tt.gen, &stubRefiner{}, true)
			var stages []Stage
			_, err := p.Generate(context.Background(), GenerateRequest{
				Prompt:  "cake",
				OnStage: func(s Stage) { stages = append(stages, s) },
			})
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if len(stages) != 2 || stages[0] != StageRefined || stages[1] != StageRendered {
				t.Fatalf("stages = %v", stages)
			}
		})
	}
}

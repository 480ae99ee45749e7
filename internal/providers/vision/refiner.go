// Package vision turns a user prompt and optional reference image into a
// detailed image-generation prompt.
package vision

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderStatic = "static"
	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// Image is the reference image sent with a refinement request.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

type RefineRequest struct {
	Prompt      string
	Style       string
	AspectRatio string
	Locale      string
	Image       *Image
}

// Refinement is the refined prompt and the provider that produced it.
type Refinement struct {
	Prompt   string
	Provider string
}

type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (*Refinement, error)
}

// StaticRefiner decorates the prompt with style and framing hints without
// calling a model.
type StaticRefiner struct{}

func NewStaticRefiner() *StaticRefiner {
	return &StaticRefiner{}
}

func (s *StaticRefiner) Refine(_ context.Context, req RefineRequest) (*Refinement, error) {
	prompt := strings.TrimSpace(req.Prompt)
	var hints []string
	if style := strings.TrimSpace(req.Style); style != "" {
		hints = append(hints, style+" style")
	}
	if req.AspectRatio != "" {
		hints = append(hints, fmt.Sprintf("composed for a %s frame", req.AspectRatio))
	}
	if req.Image != nil {
		hints = append(hints, "keep the subject, colours and layout of the reference photo")
	}
	hints = append(hints, "professional product photography, soft natural lighting, sharp focus, high detail")
	return &Refinement{
		Prompt:   prompt + ". " + strings.Join(hints, ", "),
		Provider: ProviderStatic,
	}, nil
}

// instruction is the system prompt shared by the model-backed refiners.
func instruction(req RefineRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You write prompts for an image generation model used by small businesses to produce marketing visuals. ")
	sb.WriteString("Rewrite the user's request as one detailed English prompt describing subject, composition, lighting, background, mood and camera. ")
	if req.Image != nil {
		sb.WriteString("A reference photo is attached: describe the product in it precisely so the generated image keeps it recognisable. ")
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(sb, "Apply the visual style %q. ", style)
	}
	if req.AspectRatio != "" {
		fmt.Fprintf(sb, "Frame the scene for a %s aspect ratio. ", req.AspectRatio)
	}
	sb.WriteString("Reply with the prompt text only, no preamble, no quotes, at most 120 words.")
	return sb.String()
}

func cleanRefined(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"'`")
	text = strings.TrimPrefix(text, "Prompt:")
	return strings.TrimSpace(text)
}

var _ Refiner = (*StaticRefiner)(nil)

// Package imagegen runs the two-stage generation pipeline: a vision
// refinement call followed by image generation, with stock photo fallback.
package imagegen

// SourceImage is the reference photo uploaded with a prompt. Either URL or
// Data is set.
type SourceImage struct {
	URL      string
	Data     []byte
	MIMEType string
}

func (s *SourceImage) empty() bool {
	return s == nil || (s.URL == "" && len(s.Data) == 0)
}

type GenerateRequest struct {
	Prompt      string
	Image       *SourceImage
	AspectRatio string
	Quantity    int
	Style       string
	Locale      string
	RequestID   string
	// SkipRefine sends the prompt to the generator as written.
	SkipRefine bool
	// OnStage, when set, is called as the pipeline passes each Stage.
	OnStage func(Stage)
}

// Stage is a pipeline milestone.
type Stage int

const (
	StageRefined Stage = iota + 1
	StageRendered
)

func (r GenerateRequest) notify(s Stage) {
	if r.OnStage != nil {
		r.OnStage(s)
	}
}

// GeneratedImage is one output. Hosted results carry URL; inline results
// carry Data until they are persisted.
type GeneratedImage struct {
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MIMEType string `json:"mime_type,omitempty"`
	Provider string `json:"provider,omitempty"`
	Data     []byte `json:"-"`
}

type Result struct {
	Images         []GeneratedImage `json:"images"`
	RefinedPrompt  string           `json:"refined_prompt"`
	Provider       string           `json:"provider"`
	Fallback       bool             `json:"fallback"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	AspectRatio    string           `json:"aspect_ratio"`
	Quantity       int              `json:"quantity"`
}

// URLs lists the image URLs in order, skipping inline-only images.
func (r *Result) URLs() []string {
	urls := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls
}

package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxPromptRunes     = 2000
	MinQuantity        = 1
	MaxQuantity        = 4
	DefaultAspectRatio = "1:1"
)

type dimensions struct{ w, h int }

var aspectDimensions = map[string]dimensions{
	"1:1":  {1024, 1024},
	"4:3":  {1024, 768},
	"3:4":  {768, 1024},
	"16:9": {1280, 720},
	"9:16": {720, 1280},
	"3:2":  {1200, 800},
	"2:3":  {800, 1200},
	"21:9": {1680, 720},
}

// AspectRatios lists the supported ratios in display order.
var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "3:2", "2:3", "21:9"}

// NormalizePrompt trims the prompt and enforces the length limit.
func NormalizePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidPrompt)
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptRunes {
		return "", fmt.Errorf("%w: prompt has %d characters, limit is %d", ErrInvalidPrompt, n, MaxPromptRunes)
	}
	return prompt, nil
}

// NormalizeAspectRatio defaults an empty ratio and rejects unknown ones.
func NormalizeAspectRatio(aspect string) (string, error) {
	aspect = strings.TrimSpace(aspect)
	if aspect == "" {
		return DefaultAspectRatio, nil
	}
	if _, ok := aspectDimensions[aspect]; !ok {
		return "", fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidPrompt, aspect)
	}
	return aspect, nil
}

// ClampQuantity keeps quantity within [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// AspectDimensions returns the nominal pixel size for a ratio, falling back to square.
func AspectDimensions(aspect string) (int, int) {
	d, ok := aspectDimensions[aspect]
	if !ok {
		d = aspectDimensions[DefaultAspectRatio]
	}
	return d.w, d.h
}

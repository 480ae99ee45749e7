package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/middleware"
	"studio/internal/providers/post"
)

type postGenerateRequest struct {
	Topic    string `json:"topic"`
	Tone     string `json:"tone"`
	Platform string `json:"platform"`
	ImageURL string `json:"image_url"`
	Locale   string `json:"locale"`
}

// PostsGenerate writes social post copy synchronously.
func (a *App) PostsGenerate(w http.ResponseWriter, r *http.Request) {
	if a.Posts == nil {
		a.fail(w, r, fmt.Errorf("%w: post writer not configured", domain.ErrProviderFailure))
		return
	}
	var in postGenerateRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	topic, err := domain.NormalizePrompt(in.Topic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if platform != "" && !slices.Contains(post.Platforms, platform) {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported platform")
		return
	}
	locale := strings.TrimSpace(in.Locale)
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}

	userID := a.currentUserID(r)
	if a.Profiles != nil {
		if _, err := a.Profiles.ConsumeQuota(r.Context(), userID, 1); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	start := time.Now()
	out, err := a.Posts.Write(r.Context(), post.Request{
		Topic:    topic,
		Tone:     in.Tone,
		Platform: platform,
		Locale:   locale,
		ImageURL: strings.TrimSpace(in.ImageURL),
	})
	a.recordUsage(r.Context(), domain.UsageEvent{
		UserID:   userID,
		Type:     domain.UsagePostGenerate,
		Success:  err == nil,
		Fallback: err == nil && out.Provider == "static",
		Latency:  time.Since(start),
	})
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err))
		return
	}
	a.json(w, http.StatusOK, out)
}

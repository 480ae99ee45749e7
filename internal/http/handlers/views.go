package handlers

import (
	"encoding/json"
	"time"

	"studio/internal/domain"
)

type requestView struct {
	ID             string               `json:"id"`
	Kind           domain.RequestKind   `json:"kind"`
	Status         domain.RequestStatus `json:"status"`
	Progress       int                  `json:"progress"`
	Prompt         string               `json:"prompt"`
	SourceImageURL string               `json:"source_image_url,omitempty"`
	AspectRatio    string               `json:"aspect_ratio"`
	Quantity       int                  `json:"quantity"`
	Style          string               `json:"style,omitempty"`
	Provider       string               `json:"provider,omitempty"`
	ResultURL      string               `json:"result_url,omitempty"`
	Result         json.RawMessage      `json:"result,omitempty"`
	RefinedPrompt  string               `json:"refined_prompt,omitempty"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	Fallback       bool                 `json:"fallback"`
	Attempts       int                  `json:"attempts"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

func toRequestView(req *domain.Request) requestView {
	v := requestView{
		ID:             req.ID,
		Kind:           req.Kind,
		Status:         req.Status,
		Progress:       req.Progress,
		Prompt:         req.Prompt,
		SourceImageURL: req.SourceImageURL,
		AspectRatio:    req.AspectRatio,
		Quantity:       req.Quantity,
		Style:          req.Style,
		Provider:       req.Provider,
		ResultURL:      req.ResultURL,
		RefinedPrompt:  req.RefinedPrompt,
		ErrorMessage:   req.ErrorMessage,
		Fallback:       req.Fallback,
		Attempts:       req.Attempts,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
		StartedAt:      req.StartedAt,
		CompletedAt:    req.CompletedAt,
	}
	if len(req.ResultJSON) > 0 && string(req.ResultJSON) != "{}" && string(req.ResultJSON) != "null" {
		v.Result = req.ResultJSON
	}
	return v
}

func toRequestViews(reqs []domain.Request) []requestView {
	out := make([]requestView, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestView(&reqs[i]))
	}
	return out
}

type imageView struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	URL           string    `json:"url"`
	Prompt        string    `json:"prompt"`
	RefinedPrompt string    `json:"refined_prompt,omitempty"`
	Provider      string    `json:"provider"`
	MIMEType      string    `json:"mime"`
	Bytes         int64     `json:"bytes"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	AspectRatio   string    `json:"aspect_ratio"`
	Fallback      bool      `json:"fallback"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *App) toImageView(img domain.GeneratedImage) imageView {
	url := img.SourceURL
	if a.Persister != nil {
		url = a.Persister.URL(img)
	} else if img.StorageKey != "" && a.Store != nil {
		url = a.Store.URL(img.StorageKey)
	}
	return imageView{
		ID:            img.ID,
		RequestID:     img.RequestID,
		URL:           url,
		Prompt:        img.Prompt,
		RefinedPrompt: img.RefinedPrompt,
		Provider:      img.Provider,
		MIMEType:      img.MIMEType,
		Bytes:         img.Bytes,
		Width:         img.Width,
		Height:        img.Height,
		AspectRatio:   img.AspectRatio,
		Fallback:      img.Fallback,
		CreatedAt:     img.CreatedAt,
	}
}

type profileView struct {
	ID             string      `json:"id"`
	Email          string      `json:"email"`
	FullName       string      `json:"full_name"`
	AvatarURL      string      `json:"avatar_url"`
	BusinessName   string      `json:"business_name"`
	Locale         string      `json:"locale"`
	Plan           domain.Plan `json:"plan"`
	QuotaDaily     int         `json:"quota_daily"`
	QuotaUsed      int         `json:"quota_used"`
	QuotaRemaining int         `json:"quota_remaining"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func toProfileView(p *domain.Profile) profileView {
	return profileView{
		ID:             p.ID,
		Email:          p.Email,
		FullName:       p.FullName,
		AvatarURL:      p.AvatarURL,
		BusinessName:   p.BusinessName,
		Locale:         p.Locale,
		Plan:           p.Plan,
		QuotaDaily:     p.QuotaDaily,
		QuotaUsed:      p.QuotaUsed,
		QuotaRemaining: p.QuotaRemaining(),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

package handlers

import (
	"net/http"

	"studio/internal/domain"
	"studio/internal/requests"
)

type videoGenerateRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url"`
	AspectRatio string `json:"aspect_ratio"`
	Provider    string `json:"provider"`
}

// VideosGenerate queues a video request for the worker. Video generation
// takes minutes, so progress is delivered over the request event stream.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	var in videoGenerateRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	aspect := in.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}
	req, err := a.Requests.Create(r.Context(), a.currentUserID(r), requests.CreateInput{
		Kind:           domain.RequestKindVideo,
		Prompt:         in.Prompt,
		SourceImageURL: in.ImageURL,
		AspectRatio:    aspect,
		Provider:       in.Provider,
		Submit:         true,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/requests/"+req.ID)
	a.json(w, http.StatusAccepted, toRequestView(req))
}

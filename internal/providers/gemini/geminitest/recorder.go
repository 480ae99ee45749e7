// Package geminitest provides a scripted gemini.ContentGenerator for tests.
package geminitest

import (
	"context"
	"sync"

	"google.golang.org/genai"
)

// Recorder replays Response and Err and records every call.
type Recorder struct {
	mu       sync.Mutex
	Response *genai.GenerateContentResponse
	Err      error
	Calls    []RecordedCall
}

// RecordedCall captures one GenerateContent invocation.
type RecordedCall struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

func (r *Recorder) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, RecordedCall{Model: model, Contents: contents, Config: config})
	return r.Response, r.Err
}

// TextResponse builds a single-candidate response holding text.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
	}}}
}

// ImageResponse builds a single-candidate response holding one inline image.
func ImageResponse(data []byte, mime string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mime, Data: data}}}},
	}}}
}

package domain

import (
	"encoding/json"
	"time"
)

// GeneratedImage records an image produced for a request.
type GeneratedImage struct {
	ID            string
	UserID        string
	RequestID     string
	Prompt        string
	RefinedPrompt string
	Provider      string
	StorageKey    string
	SourceURL     string
	MIMEType      string
	Bytes         int64
	Width         int
	Height        int
	AspectRatio   string
	Fallback      bool
	Properties    json.RawMessage
	CreatedAt     time.Time
}

// Package video holds the video generation providers.
package video

import "context"

type GenerateRequest struct {
	Prompt         string
	SourceImageURL string
	AspectRatio    string
	DurationSec    int
	RequestID      string
}

type Asset struct {
	URL      string
	MIMEType string
	TaskID   string
	Provider string
}

// ProgressFunc is called while a remote task is still running.
type ProgressFunc func(status string)

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, progress ProgressFunc) (*Asset, error)
}

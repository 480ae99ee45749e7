package domain

import "time"

// UsageEventType enumerates recorded usage events.
type UsageEventType string

const (
	UsageImageGenerate UsageEventType = "IMAGE_GENERATE"
	UsageImageRefine   UsageEventType = "IMAGE_REFINE"
	UsageGeminiImage   UsageEventType = "GEMINI_IMAGE"
	UsageVideoGenerate UsageEventType = "VIDEO_GENERATE"
	UsagePostGenerate  UsageEventType = "POST_GENERATE"
)

// UsageEvent is a single usage record.
type UsageEvent struct {
	UserID    string
	RequestID string
	Type      UsageEventType
	Success   bool
	Fallback  bool
	Latency   time.Duration
}

// UsageStats aggregates a user's usage.
type UsageStats struct {
	ImagesGenerated int64
	VideosGenerated int64
	PostsGenerated  int64
	Success         int64
	Failed          int64
	FallbackServed  int64
	Last24h         int64
	AvgLatencyMS    float64
}

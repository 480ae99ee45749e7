package domain

import (
	"encoding/json"
	"time"
)

// RequestKind enumerates what a request record generates.
type RequestKind string

const (
	RequestKindImage RequestKind = "image"
	RequestKindVideo RequestKind = "video"
	RequestKindPost  RequestKind = "post"
)

// Valid reports whether the kind is supported.
func (k RequestKind) Valid() bool {
	switch k {
	case RequestKindImage, RequestKindVideo, RequestKindPost:
		return true
	}
	return false
}

// RequestStatus enumerates request lifecycle states.
type RequestStatus string

const (
	RequestStatusNew        RequestStatus = "new"
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
)

// MaxRequestAttempts caps how many times a failed request may be retried.
const MaxRequestAttempts = 3

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusNew:        {RequestStatusPending, RequestStatusFailed},
	RequestStatusPending:    {RequestStatusProcessing, RequestStatusFailed},
	RequestStatusProcessing: {RequestStatusCompleted, RequestStatusFailed, RequestStatusPending},
	RequestStatusFailed:     {RequestStatusPending},
}

// Valid reports whether the status is one of the known states.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusNew, RequestStatusPending, RequestStatusProcessing, RequestStatusCompleted, RequestStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further work happens for the status.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// processing -> pending is reserved for requeueing stale work.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Request is one generation job owned by a profile.
type Request struct {
	ID             string
	UserID         string
	Kind           RequestKind
	Status         RequestStatus
	Progress       int
	Prompt         string
	SourceImageURL string
	AspectRatio    string
	Quantity       int
	Style          string
	Provider       string
	ResultURL      string
	ResultJSON     json.RawMessage
	RefinedPrompt  string
	ErrorMessage   string
	Fallback       bool
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	UserID string
	Status RequestStatus
	Kind   RequestKind
	Limit  int
	Offset int
}

// RequestOutcome carries the result written when a request finishes.
type RequestOutcome struct {
	ResultURL     string
	ResultJSON    json.RawMessage
	RefinedPrompt string
	Fallback      bool
}

// RequestStats counts a user's requests per status.
type RequestStats map[RequestStatus]int

package events

import (
	"time"

	"studio/internal/domain"
)

// Type names an event on the request stream.
type Type string

const (
	TypeCreated   Type = "request.created"
	TypeUpdated   Type = "request.updated"
	TypeProgress  Type = "request.progress"
	TypeCompleted Type = "request.completed"
	TypeFailed    Type = "request.failed"
	TypeDeleted   Type = "request.deleted"
)

// Event is a request change delivered to subscribers and across processes.
type Event struct {
	Type      Type                 `json:"type"`
	RequestID string               `json:"request_id"`
	UserID    string               `json:"user_id"`
	Status    domain.RequestStatus `json:"status,omitempty"`
	Progress  int                  `json:"progress"`
	Message   string               `json:"message,omitempty"`
	ResultURL string               `json:"result_url,omitempty"`
	Fallback  bool                 `json:"fallback,omitempty"`
	Origin    string               `json:"origin,omitempty"`
	At        time.Time            `json:"at"`
}

// FromRequest builds an event describing the current state of req.
func FromRequest(t Type, req *domain.Request) Event {
	ev := Event{Type: t, At: time.Now().UTC()}
	if req == nil {
		return ev
	}
	ev.RequestID = req.ID
	ev.UserID = req.UserID
	ev.Status = req.Status
	ev.Progress = req.Progress
	ev.Message = req.ErrorMessage
	ev.ResultURL = req.ResultURL
	ev.Fallback = req.Fallback
	return ev
}

// TypeForStatus picks the event type matching a status change.
func TypeForStatus(status domain.RequestStatus) Type {
	switch status {
	case domain.RequestStatusCompleted:
		return TypeCompleted
	case domain.RequestStatusFailed:
		return TypeFailed
	default:
		return TypeUpdated
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/events"
)

// RequestEvents streams every request event of the caller as server-sent
// events.
func (a *App) RequestEvents(w http.ResponseWriter, r *http.Request) {
	a.streamEvents(w, r, "", nil)
}

// RequestEventsByID streams one request, starting with its current state,
// and closes once it reaches a terminal status.
func (a *App) RequestEventsByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.streamEvents(w, r, id, func() (*events.Event, error) {
		req, err := a.Requests.Get(r.Context(), a.currentUserID(r), id)
		if err != nil {
			return nil, err
		}
		snapshot := events.FromRequest(events.TypeForStatus(req.Status), req)
		return &snapshot, nil
	})
}

// streamEvents subscribes before snapshot runs so a change landing between
// the two still reaches the client.
func (a *App) streamEvents(w http.ResponseWriter, r *http.Request, requestID string, snapshot func() (*events.Event, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok || a.Bus == nil {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	ch, unsubscribe := a.Bus.Subscribe(a.currentUserID(r))
	defer unsubscribe()

	var first *events.Event
	if snapshot != nil {
		var err error
		if first, err = snapshot(); err != nil {
			a.fail(w, r, err)
			return
		}
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = events.WriteComment(w, "connected")
	if first != nil {
		_ = events.WriteSSE(w, *first)
		if first.Status.Terminal() {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := events.WriteComment(w, "ping"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			if requestID != "" && ev.RequestID != requestID {
				continue
			}
			if err := events.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if requestID != "" && (ev.Status.Terminal() || ev.Type == events.TypeDeleted) {
				return
			}
		}
	}
}

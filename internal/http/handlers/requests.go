package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/requests"
	"studio/internal/storage"
	"studio/pkg/zip"
)

type requestCreateRequest struct {
	Kind           domain.RequestKind `json:"kind"`
	Prompt         string             `json:"prompt"`
	SourceImageURL string             `json:"source_image_url"`
	AspectRatio    string             `json:"aspect_ratio"`
	Quantity       int                `json:"quantity"`
	Style          string             `json:"style"`
	Provider       string             `json:"provider"`
	Submit         bool               `json:"submit"`
}

type requestUpdateRequest struct {
	Prompt         *string `json:"prompt"`
	SourceImageURL *string `json:"source_image_url"`
	AspectRatio    *string `json:"aspect_ratio"`
	Quantity       *int    `json:"quantity"`
	Style          *string `json:"style"`
	Provider       *string `json:"provider"`
}

func (a *App) RequestsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()
	list, err := a.Requests.List(r.Context(), domain.RequestFilter{
		UserID: a.currentUserID(r),
		Status: domain.RequestStatus(strings.ToLower(q.Get("status"))),
		Kind:   domain.RequestKind(strings.ToLower(q.Get("kind"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toRequestViews(list), "limit": limit, "offset": offset})
}

func (a *App) RequestsCreate(w http.ResponseWriter, r *http.Request) {
	var in requestCreateRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	req, err := a.Requests.Create(r.Context(), a.currentUserID(r), requests.CreateInput{
		Kind:           in.Kind,
		Prompt:         in.Prompt,
		SourceImageURL: in.SourceImageURL,
		AspectRatio:    in.AspectRatio,
		Quantity:       in.Quantity,
		Style:          in.Style,
		Provider:       in.Provider,
		Submit:         in.Submit,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toRequestView(req))
}

func (a *App) RequestsGet(w http.ResponseWriter, r *http.Request) {
	req, err := a.Requests.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toRequestView(req))
}

func (a *App) RequestsUpdate(w http.ResponseWriter, r *http.Request) {
	var in requestUpdateRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	req, err := a.Requests.Update(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), requests.UpdateInput{
		Prompt:         in.Prompt,
		SourceImageURL: in.SourceImageURL,
		AspectRatio:    in.AspectRatio,
		Quantity:       in.Quantity,
		Style:          in.Style,
		Provider:       in.Provider,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toRequestView(req))
}

func (a *App) RequestsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Requests.Delete(r.Context(), a.currentUserID(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestAction adapts a lifecycle method into a handler.
func (a *App) requestAction(action func(ctx context.Context, userID, id string) (*domain.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := action(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, toRequestView(req))
	}
}

func (a *App) RequestsSubmit(w http.ResponseWriter, r *http.Request) {
	a.requestAction(a.Requests.Submit)(w, r)
}

func (a *App) RequestsCancel(w http.ResponseWriter, r *http.Request) {
	a.requestAction(a.Requests.Cancel)(w, r)
}

func (a *App) RequestsRetry(w http.ResponseWriter, r *http.Request) {
	a.requestAction(a.Requests.Retry)(w, r)
}

// RequestsZip archives every image produced for a request.
func (a *App) RequestsZip(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	req, err := a.Requests.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rows, err := a.Images.ListByRequest(r.Context(), userID, req.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if len(rows) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "request has no images")
		return
	}
	entries := make([]zip.Entry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, zip.Entry{
			Filename: fmt.Sprintf("%s-%d%s", req.ID, i+1, storage.ExtensionFor(row.MIMEType)),
			Modified: row.CreatedAt,
			Open:     a.imageOpener(r.Context(), row),
		})
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=request-%s.zip", req.ID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, entries); err != nil {
		a.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("write request archive")
	}
}

func (a *App) imageOpener(ctx context.Context, row domain.GeneratedImage) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		if row.StorageKey != "" && a.Store != nil {
			rc, _, err := a.Store.Open(ctx, row.StorageKey)
			return rc, err
		}
		if a.Fetcher == nil {
			return nil, storageUnavailable
		}
		up, err := a.Fetcher.Open(ctx, row.SourceURL)
		if err != nil {
			return nil, err
		}
		return up.Body, nil
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"studio/internal/storage"
)

func (a *App) GeneratedImagesList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	rows, err := a.Images.List(r.Context(), a.currentUserID(r), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]imageView, 0, len(rows))
	for _, row := range rows {
		items = append(items, a.toImageView(row))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (a *App) GeneratedImageGet(w http.ResponseWriter, r *http.Request) {
	img, err := a.Images.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toImageView(*img))
}

// GeneratedImageDelete removes the row and its stored file.
func (a *App) GeneratedImageDelete(w http.ResponseWriter, r *http.Request) {
	img, err := a.Images.Delete(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if img.StorageKey != "" && a.Store != nil {
		if err := a.Store.Delete(r.Context(), img.StorageKey); err != nil {
			a.Logger.Warn().Err(err).Str("key", img.StorageKey).Msg("delete stored image")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GeneratedImageDownload streams the stored file, or proxies the source URL
// for images that were never stored.
func (a *App) GeneratedImageDownload(w http.ResponseWriter, r *http.Request) {
	img, err := a.Images.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if img.StorageKey == "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "image-"+img.ID+".jpg"))
		a.proxy(w, r, img.SourceURL)
		return
	}
	filename := "image-" + img.ID + path.Ext(img.StorageKey)
	if path.Ext(img.StorageKey) == "" {
		filename += storage.ExtensionFor(img.MIMEType)
	}
	a.serveStored(w, r, img.StorageKey, img.MIMEType, filename)
}

package handlers

import (
	"net/http"

	"studio/internal/domain"
	"studio/internal/middleware"
)

type profileUpdateRequest struct {
	FullName     *string `json:"full_name"`
	AvatarURL    *string `json:"avatar_url"`
	BusinessName *string `json:"business_name"`
	Locale       *string `json:"locale"`
}

func (a *App) ProfileGet(w http.ResponseWriter, r *http.Request) {
	profile, err := a.Profiles.Ensure(r.Context(), a.currentUserID(r), middleware.EmailFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toProfileView(profile))
}

func (a *App) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var in profileUpdateRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.Locale != nil {
		switch *in.Locale {
		case "en", "id":
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "locale must be en or id")
			return
		}
	}
	profile, err := a.Profiles.Update(r.Context(), a.currentUserID(r), domain.ProfileUpdate{
		FullName:     in.FullName,
		AvatarURL:    in.AvatarURL,
		BusinessName: in.BusinessName,
		Locale:       in.Locale,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toProfileView(profile))
}

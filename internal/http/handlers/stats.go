package handlers

import (
	"net/http"
)

// StatsSummary reports the caller's usage, request counts and quota.
func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	usage, err := a.Usage.Stats(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	counts, err := a.Requests.Stats(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := map[string]any{
		"images_generated": usage.ImagesGenerated,
		"videos_generated": usage.VideosGenerated,
		"posts_generated":  usage.PostsGenerated,
		"request_success":  usage.Success,
		"request_fail":     usage.Failed,
		"fallback_served":  usage.FallbackServed,
		"last_24h":         usage.Last24h,
		"avg_latency_ms":   usage.AvgLatencyMS,
		"requests":         counts,
	}
	if a.Profiles != nil {
		if profile, err := a.Profiles.Get(r.Context(), userID); err == nil {
			resp["quota_daily"] = profile.QuotaDaily
			resp["quota_remaining"] = profile.QuotaRemaining()
		}
	}
	a.json(w, http.StatusOK, resp)
}

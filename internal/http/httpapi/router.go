package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/infra/geoip"
	"studio/internal/middleware"
)

// JWTAudience is the aud claim Supabase puts on user access tokens.
const JWTAudience = "authenticated"

func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger, countries geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSOrigins),
	)

	var lookup middleware.CountryLookup
	if countries != nil {
		lookup = countries.CountryCode
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	if app.Store != nil {
		files := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Store.BasePath())))
		r.Handle("/static/*", files)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.I18N(cfg.DefaultLocale, lookup),
			middleware.AuthJWT(cfg.JWTSecret, JWTAudience),
			app.EnsureProfile,
		)

		r.Get("/v1/images/proxy", app.ImagesProxy)
		r.Get("/v1/profile", app.ProfileGet)
		r.Put("/v1/profile", app.ProfileUpdate)
		r.Get("/v1/stats", app.StatsSummary)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
			r.Post("/v1/images/generate", app.ImagesGenerate)
			r.Post("/v1/images/generate/stream", app.ImagesGenerateStream)
			r.Post("/v1/images/refine", app.ImagesRefine)
			r.Post("/v1/images/gemini", app.ImagesGemini)
			r.Post("/v1/videos/generate", app.VideosGenerate)
			r.Post("/v1/posts/generate", app.PostsGenerate)
		})

		r.Route("/v1/generated-images", func(r chi.Router) {
			r.Get("/", app.GeneratedImagesList)
			r.Get("/{id}", app.GeneratedImageGet)
			r.Delete("/{id}", app.GeneratedImageDelete)
			r.Get("/{id}/download", app.GeneratedImageDownload)
		})

		r.Route("/v1/requests", func(r chi.Router) {
			r.Get("/", app.RequestsList)
			r.Post("/", app.RequestsCreate)
			r.Get("/events", app.RequestEvents)
			r.Get("/{id}", app.RequestsGet)
			r.Patch("/{id}", app.RequestsUpdate)
			r.Delete("/{id}", app.RequestsDelete)
			r.Post("/{id}/submit", app.RequestsSubmit)
			r.Post("/{id}/cancel", app.RequestsCancel)
			r.Post("/{id}/retry", app.RequestsRetry)
			r.Get("/{id}/events", app.RequestEventsByID)
			r.Get("/{id}/zip", app.RequestsZip)
		})
	})

	return r
}

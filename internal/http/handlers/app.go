package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/middleware"
	"studio/internal/providers/post"
	"studio/internal/requests"
	"studio/internal/storage"
)

const maxJSONBody = 1 << 20

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of App. Nil optional fields disable the
// endpoints that need them.
type Deps struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	DB        Pinger
	Requests  *requests.Service
	Profiles  domain.ProfileRepository
	Images    domain.ImageRepository
	Usage     domain.UsageRepository
	Pipeline  *imagegen.Pipeline
	Gemini    *imagegen.Pipeline
	Persister *imagegen.Persister
	Fetcher   *imagegen.Fetcher
	Posts     post.Writer
	Store     *storage.FileStore
	Bus       *events.Bus
}

type App struct {
	Deps
	ensured   *cache.Cache
	heartbeat time.Duration
}

func NewApp(deps Deps) *App {
	if deps.Config == nil {
		deps.Config = &infra.Config{}
	}
	return &App{
		Deps:      deps,
		ensured:   cache.New(10*time.Minute, 20*time.Minute),
		heartbeat: 25 * time.Second,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps a domain error onto its HTTP status and error code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusUnprocessableEntity, "invalid_prompt", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnsupportedHost):
		a.error(w, http.StatusBadRequest, "unsupported_host", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusForbidden, "quota_exceeded", "daily quota exceeded")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, imagegen.ErrTooLarge):
		a.error(w, http.StatusBadGateway, "too_large", err.Error())
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, "timeout", "upstream timed out")
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid payload: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// EnsureProfile creates the caller's profile row on first contact so quota
// checks and foreign keys always find it.
func (a *App) EnsureProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := a.currentUserID(r)
		if userID == "" {
			a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
			return
		}
		if _, ok := a.ensured.Get(userID); !ok && a.Profiles != nil {
			if _, err := a.Profiles.Ensure(r.Context(), userID, middleware.EmailFromContext(r.Context())); err != nil {
				a.fail(w, r, err)
				return
			}
			a.ensured.SetDefault(userID, struct{}{})
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) recordUsage(ctx context.Context, ev domain.UsageEvent) {
	if a.Usage == nil {
		return
	}
	if err := a.Usage.Record(ctx, ev); err != nil {
		a.Logger.Warn().Err(err).Str("user_id", ev.UserID).Str("event", string(ev.Type)).Msg("record usage")
	}
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/imagegen"
	"studio/internal/middleware"
	"studio/internal/providers/fallback"
	"studio/internal/providers/image"
	"studio/internal/providers/post"
	"studio/internal/requests"
	"studio/internal/requests/requeststest"
)

type stubProfiles struct {
	mu       sync.Mutex
	ensured  int
	quota    int
	used     int
	profiles map[string]*domain.Profile
}

func newStubProfiles(quota int) *stubProfiles {
	return &stubProfiles{quota: quota, profiles: make(map[string]*domain.Profile)}
}

func (s *stubProfiles) Ensure(_ context.Context, id, email string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured++
	p, ok := s.profiles[id]
	if !ok {
		p = &domain.Profile{ID: id, Email: email, Locale: "en", Plan: domain.PlanFree, QuotaDaily: s.quota}
		s.profiles[id] = p
	}
	p.QuotaUsed = s.used
	cp := *p
	return &cp, nil
}

func (s *stubProfiles) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return s.Ensure(ctx, id, "")
}

func (s *stubProfiles) Update(_ context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if update.Locale != nil {
		p.Locale = *update.Locale
	}
	if update.BusinessName != nil {
		p.BusinessName = *update.BusinessName
	}
	cp := *p
	return &cp, nil
}

func (s *stubProfiles) ConsumeQuota(_ context.Context, _ string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used+amount > s.quota {
		return 0, domain.ErrQuotaExceeded
	}
	s.used += amount
	return s.quota - s.used, nil
}

func (s *stubProfiles) RefundQuota(_ context.Context, _ string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = max(s.used-amount, 0)
	return nil
}

func (s *stubProfiles) SetPlan(context.Context, string, domain.Plan) (*domain.Profile, error) {
	return nil, domain.ErrNotFound
}

type stubUsage struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (s *stubUsage) Record(_ context.Context, ev domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *stubUsage) Stats(context.Context, string) (*domain.UsageStats, error) {
	return &domain.UsageStats{}, nil
}

type hostedGenerator struct {
	err error
}

func (g hostedGenerator) Generate(_ context.Context, req image.GenerateRequest) (*image.Asset, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &image.Asset{
		URL:      fmt.Sprintf("https://cdn.example.com/%d.jpeg", req.Index),
		MIMEType: "image/jpeg",
		Width:    1024,
		Height:   1024,
		Provider: "seedream",
	}, nil
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	app      *App
	repo     *requeststest.Repository
	profiles *stubProfiles
	usage    *stubUsage
	router   http.Handler
}

func newTestEnv(t *testing.T, gen image.Generator) *testEnv {
	t.Helper()
	repo := requeststest.NewRepository()
	profiles := newStubProfiles(5)
	usage := &stubUsage{}
	logger := zerolog.Nop()
	bus := events.NewBus(logger)
	app := NewApp(Deps{
		Logger:   logger,
		Requests: requests.NewService(repo, profiles, bus, logger),
		Profiles: profiles,
		Usage:    usage,
		Pipeline: imagegen.NewPipeline(imagegen.Options{
			Generator:       gen,
			Fallback:        fallback.NewPicker(nil),
			FallbackEnabled: true,
			Logger:          logger,
		}),
		Posts: post.NewStaticWriter(),
		Bus:   bus,
	})
	app.heartbeat = 10 * time.Millisecond

	r := chi.NewRouter()
	r.Get("/healthz", app.Health)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				uid := req.Header.Get("X-Test-User")
				if uid == "" {
					uid = "u1"
				}
				next.ServeHTTP(w, req.WithContext(middleware.ContextWithUserID(req.Context(), uid)))
			})
		})
		r.Use(app.EnsureProfile)
		r.Get("/profile", app.ProfileGet)
		r.Patch("/profile", app.ProfileUpdate)
		r.Post("/images/generate", app.ImagesGenerate)
		r.Post("/posts/generate", app.PostsGenerate)
		r.Get("/requests", app.RequestsList)
		r.Post("/requests", app.RequestsCreate)
		r.Get("/requests/{id}", app.RequestsGet)
		r.Patch("/requests/{id}", app.RequestsUpdate)
		r.Delete("/requests/{id}", app.RequestsDelete)
		r.Post("/requests/{id}/submit", app.RequestsSubmit)
		r.Post("/requests/{id}/cancel", app.RequestsCancel)
		r.Post("/requests/{id}/retry", app.RequestsRetry)
		r.Get("/requests/{id}/events", app.RequestEventsByID)
	})
	return &testEnv{app: app, repo: repo, profiles: profiles, usage: usage, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &env)
	return env.Error.Code
}

func TestFailMapping(t *testing.T) {
	app := NewApp(Deps{Logger: zerolog.Nop()})
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: empty", domain.ErrInvalidPrompt), http.StatusUnprocessableEntity, "invalid_prompt"},
		{domain.ErrInvalidInput, http.StatusBadRequest, "bad_request"},
		{domain.ErrUnsupportedHost, http.StatusBadRequest, "unsupported_host"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrQuotaExceeded, http.StatusForbidden, "quota_exceeded"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{imagegen.ErrTooLarge, http.StatusBadGateway, "too_large"},
		{domain.ErrProviderFailure, http.StatusBadGateway, "provider_failure"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	app := NewApp(Deps{Logger: zerolog.Nop(), DB: failingPinger{err: errors.New("down")}})
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}

	app = NewApp(Deps{Logger: zerolog.Nop(), DB: failingPinger{}})
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEnsureProfileRunsOncePerUser(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodGet, "/requests", ""); rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	}
	if env.profiles.ensured != 1 {
		t.Fatalf("ensure calls = %d, want 1", env.profiles.ensured)
	}
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})

	rec := env.do(t, http.MethodPatch, "/profile", `{"locale":"fr"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/profile", `{"locale":"id","business_name":"Kopi Senja"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var view profileView
	decodeBody(t, rec, &view)
	if view.Locale != "id" || view.BusinessName != "Kopi Senja" {
		t.Fatalf("unexpected profile %+v", view)
	}

	rec = env.do(t, http.MethodPatch, "/profile", `{"nickname":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
}

func TestRequestLifecycle(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})

	rec := env.do(t, http.MethodPost, "/requests", `{"prompt":"es kopi susu","aspect_ratio":"3:4","quantity":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var created requestView
	decodeBody(t, rec, &created)
	if created.Status != domain.RequestStatusNew || created.Quantity != 2 || created.AspectRatio != "3:4" {
		t.Fatalf("unexpected request %+v", created)
	}

	rec = env.do(t, http.MethodPatch, "/requests/"+created.ID, `{"quantity":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/requests/"+created.ID+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d body = %s", rec.Code, rec.Body.String())
	}
	var submitted requestView
	decodeBody(t, rec, &submitted)
	if submitted.Status != domain.RequestStatusPending {
		t.Fatalf("status after submit = %s", submitted.Status)
	}
	if env.profiles.used != 3 {
		t.Fatalf("quota used = %d, want 3", env.profiles.used)
	}

	rec = env.do(t, http.MethodPatch, "/requests/"+created.ID, `{"prompt":"late edit"}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Fatalf("edit after submit status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/requests/"+created.ID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/requests?status=failed", "")
	var list struct {
		Items []requestView `json:"items"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ErrorMessage == "" {
		t.Fatalf("failed list = %+v", list.Items)
	}

	rec = env.do(t, http.MethodDelete, "/requests/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/requests/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", rec.Code)
	}
}

func TestRequestsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	other := env.repo.Put(domain.Request{UserID: "u2", Kind: domain.RequestKindImage, Status: domain.RequestStatusNew, Prompt: "x", AspectRatio: "1:1", Quantity: 1})

	for _, path := range []string{"/requests/" + other.ID, "/requests/" + other.ID + "/events"} {
		rec := env.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestRequestCreateValidation(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty prompt", `{"prompt":"  "}`, http.StatusUnprocessableEntity},
		{"bad aspect", `{"prompt":"cake","aspect_ratio":"2:7"}`, http.StatusUnprocessableEntity},
		{"bad kind", `{"prompt":"cake","kind":"audio"}`, http.StatusBadRequest},
		{"malformed", `{"prompt":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/requests", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d body = %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRequestSubmitQuotaExceeded(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	rec := env.do(t, http.MethodPost, "/requests", `{"prompt":"cake","quantity":4,"submit":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/requests", `{"prompt":"cake","quantity":4,"submit":true}`)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "quota_exceeded" {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestImagesGenerate(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	rec := env.do(t, http.MethodPost, "/images/generate", `{"prompt":"nasi goreng","quantity":2,"aspect_ratio":"1:1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Images   []map[string]any `json:"images"`
		Provider string           `json:"provider"`
		Fallback bool             `json:"fallback"`
	}
	decodeBody(t, rec, &out)
	if len(out.Images) != 2 || out.Fallback {
		t.Fatalf("unexpected result %s", rec.Body.String())
	}
	if env.profiles.used != 2 {
		t.Fatalf("quota used = %d", env.profiles.used)
	}
	if len(env.usage.events) != 1 || !env.usage.events[0].Success {
		t.Fatalf("usage = %+v", env.usage.events)
	}
}

func TestImagesGenerateServesFallback(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{err: errors.New("upstream 500")})
	rec := env.do(t, http.MethodPost, "/images/generate", `{"prompt":"nasi goreng"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Fallback bool `json:"fallback"`
	}
	decodeBody(t, rec, &out)
	if !out.Fallback {
		t.Fatalf("expected fallback result: %s", rec.Body.String())
	}
	if ev := env.usage.events[0]; ev.Success || !ev.Fallback {
		t.Fatalf("usage = %+v", ev)
	}
}

func TestImagesGenerateRejectsEmptyPromptWithoutQuota(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	rec := env.do(t, http.MethodPost, "/images/generate", `{"prompt":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.profiles.used != 0 {
		t.Fatalf("quota consumed for invalid prompt")
	}
}

func TestDecodeImageBase64(t *testing.T) {
	data, mime, err := decodeImageBase64("data:image/png;base64,aGVsbG8=", "")
	if err != nil || string(data) != "hello" || mime != "image/png" {
		t.Fatalf("data url: %q %q %v", data, mime, err)
	}
	if _, _, err := decodeImageBase64("data:image/png,hello", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("plain data url err = %v", err)
	}
	if _, _, err := decodeImageBase64("!!!", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("garbage err = %v", err)
	}
}

func TestPostsGenerate(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	rec := env.do(t, http.MethodPost, "/posts/generate", `{"topic":"kopi susu gula aren","platform":"instagram","locale":"id"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var out post.Post
	decodeBody(t, rec, &out)
	if out.Caption == "" || out.Locale != "id" || len(out.Hashtags) == 0 {
		t.Fatalf("unexpected post %+v", out)
	}
	if ev := env.usage.events[0]; ev.Type != domain.UsagePostGenerate || !ev.Fallback {
		t.Fatalf("usage = %+v", ev)
	}

	rec = env.do(t, http.MethodPost, "/posts/generate", `{"topic":"kopi","platform":"myspace"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("platform status = %d", rec.Code)
	}
}

func TestRequestEventsByIDClosesOnTerminalSnapshot(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	done := env.repo.Put(domain.Request{
		UserID: "u1", Kind: domain.RequestKindImage, Status: domain.RequestStatusCompleted,
		Prompt: "cake", AspectRatio: "1:1", Quantity: 1, Progress: 100, ResultURL: "https://cdn.example.com/a.jpeg",
	})

	rec := env.do(t, http.MethodGet, "/requests/"+done.ID+"/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ": connected") || !strings.Contains(body, "event: request.completed") {
		t.Fatalf("body = %q", body)
	}
	if !strings.Contains(body, `"result_url":"https://cdn.example.com/a.jpeg"`) {
		t.Fatalf("snapshot missing result url: %q", body)
	}
}

func TestRequestEventsByIDStreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	req := env.repo.Put(domain.Request{
		UserID: "u1", Kind: domain.RequestKindImage, Status: domain.RequestStatusNew,
		Prompt: "cake", AspectRatio: "1:1", Quantity: 1,
	})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/requests/"+req.ID+"/events", nil)
	resp, err := srv.Client().Do(httpReq)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	for env.app.Bus.Subscribers("u1") == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := env.app.Requests.Cancel(ctx, "u1", req.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := buf.String()
	if !strings.Contains(body, "event: request.failed") {
		t.Fatalf("stream = %q", body)
	}
}

// finishingRepo completes a processing request right after handing out its
// snapshot, as a worker would when it finishes mid-handshake.
type finishingRepo struct {
	*requeststest.Repository
	svc  *requests.Service
	once sync.Once
}

func (r *finishingRepo) Get(ctx context.Context, userID, id string) (*domain.Request, error) {
	req, err := r.Repository.Get(ctx, userID, id)
	if err != nil || req.Status != domain.RequestStatusProcessing {
		return req, err
	}
	r.once.Do(func() {
		_, err = r.svc.Complete(ctx, id, domain.RequestOutcome{ResultURL: "https://cdn.example.com/done.jpeg"})
	})
	return req, err
}

func TestRequestEventsByIDSeesCompletionDuringSnapshot(t *testing.T) {
	env := newTestEnv(t, hostedGenerator{})
	repo := &finishingRepo{Repository: env.repo}
	repo.svc = requests.NewService(repo, env.profiles, env.app.Bus, zerolog.Nop())
	env.app.Requests = repo.svc
	req := env.repo.Put(domain.Request{
		UserID: "u1", Kind: domain.RequestKindImage, Status: domain.RequestStatusProcessing,
		Prompt: "cake", AspectRatio: "1:1", Quantity: 1, Progress: 40,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	httpReq := httptest.NewRequest(http.MethodGet, "/requests/"+req.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httpReq)

	if ctx.Err() != nil {
		t.Fatal("stream stayed open after the request completed")
	}
	stored, _ := env.repo.Snapshot(req.ID)
	if stored.Status != domain.RequestStatusCompleted {
		t.Fatalf("stored status = %s", stored.Status)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: request.updated") || !strings.Contains(body, "event: request.completed") {
		t.Fatalf("body = %q", body)
	}
}

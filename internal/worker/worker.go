// Package worker drains the request queue: it claims pending requests,
// runs the matching generator and records the outcome.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/imagegen"
	"studio/internal/providers/post"
	"studio/internal/providers/video"
	"studio/internal/requests"
	"studio/internal/storage"
)

// Progress checkpoints reported while a request runs.
const (
	progressClaimed   = 10
	progressRefined   = 40
	progressGenerated = 80
	progressPersisted = 95

	progressVideoStart = 20
	progressVideoStep  = 5
	progressVideoMax   = 75

	defaultVideoDuration = 5
	maxErrorMessage      = 500
)

type Options struct {
	Requests  *requests.Service
	Pipeline  *imagegen.Pipeline
	Persister *imagegen.Persister
	Video     video.Generator
	Posts     post.Writer
	// Profiles supplies the owner's locale for post copy. Optional.
	Profiles domain.ProfileRepository
	Usage    domain.UsageRepository
	// Store and Fetcher mirror finished videos. Both optional.
	Store   *storage.FileStore
	Fetcher *imagegen.Fetcher

	PollInterval time.Duration
	StaleAfter   time.Duration
	// JobTimeout bounds a single request.
	JobTimeout time.Duration
	Logger     zerolog.Logger
}

type Worker struct {
	opts   Options
	logger zerolog.Logger
}

func New(opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 12 * time.Minute
	}
	return &Worker{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "worker").Logger(),
	}
}

// Run polls the queue and sweeps stale requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.opts.PollInterval).Dur("stale_after", w.opts.StaleAfter).Msg("worker started")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.poll(ctx) })
	g.Go(func() error { return w.sweep(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) poll(ctx context.Context) error {
	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("claim request")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.PollInterval):
		}
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	interval := w.opts.StaleAfter / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.RequeueStale(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RequeueStale returns abandoned processing requests to the queue.
func (w *Worker) RequeueStale(ctx context.Context) {
	n, err := w.opts.Requests.RequeueStale(ctx, w.opts.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("requeue stale requests")
		}
		return
	}
	if n > 0 {
		w.logger.Warn().Int("count", n).Msg("requeued stale requests")
	}
}

// RunOnce claims and processes one request. It reports false when the queue
// was empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	req, err := w.opts.Requests.Claim(ctx)
	if errors.Is(err, requests.ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.process(ctx, req)
	return true, nil
}

func (w *Worker) process(ctx context.Context, req *domain.Request) {
	log := w.logger.With().Str("request_id", req.ID).Str("kind", string(req.Kind)).Logger()
	log.Info().Int("attempts", req.Attempts).Msg("picked request")
	start := time.Now()
	w.progress(ctx, req, progressClaimed)

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	var (
		outcome *domain.RequestOutcome
		err     error
	)
	switch req.Kind {
	case domain.RequestKindImage:
		outcome, err = w.processImage(jobCtx, req)
	case domain.RequestKindVideo:
		outcome, err = w.processVideo(jobCtx, req)
	case domain.RequestKindPost:
		outcome, err = w.processPost(jobCtx, req)
	default:
		err = fmt.Errorf("unsupported request kind %q", req.Kind)
	}

	if ctx.Err() != nil {
		// Shutdown: the stale sweep hands the request to the next worker.
		log.Warn().Msg("worker stopping, request left for requeue")
		return
	}
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("request failed")
		if _, ferr := w.opts.Requests.Fail(ctx, req.ID, errorMessage(err)); ferr != nil {
			log.Error().Err(ferr).Msg("mark request failed")
		}
		return
	}
	if _, err := w.opts.Requests.Complete(ctx, req.ID, *outcome); err != nil {
		log.Error().Err(err).Msg("mark request completed")
		return
	}
	log.Info().Bool("fallback", outcome.Fallback).Dur("duration", time.Since(start)).Msg("request completed")
}

func (w *Worker) processImage(ctx context.Context, req *domain.Request) (*domain.RequestOutcome, error) {
	if w.opts.Pipeline == nil {
		return nil, errors.New("image pipeline not configured")
	}
	in := imagegen.GenerateRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Quantity:    req.Quantity,
		Style:       req.Style,
		Locale:      w.locale(ctx, req.UserID),
		RequestID:   req.ID,
		OnStage: func(s imagegen.Stage) {
			switch s {
			case imagegen.StageRefined:
				w.progress(ctx, req, progressRefined)
			case imagegen.StageRendered:
				w.progress(ctx, req, progressGenerated)
			}
		},
	}
	if req.SourceImageURL != "" {
		in.Image = &imagegen.SourceImage{URL: req.SourceImageURL}
	}

	start := time.Now()
	result, err := w.opts.Pipeline.Generate(ctx, in)
	w.record(ctx, domain.UsageEvent{
		UserID:    req.UserID,
		RequestID: req.ID,
		Type:      domain.UsageImageGenerate,
		Success:   err == nil && !result.Fallback,
		Fallback:  err == nil && result.Fallback,
		Latency:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}

	var rows []domain.GeneratedImage
	if w.opts.Persister != nil {
		rows, err = w.opts.Persister.Persist(ctx, imagegen.PersistInput{
			UserID:    req.UserID,
			RequestID: req.ID,
			Prompt:    req.Prompt,
			Result:    result,
		})
		if err != nil {
			return nil, fmt.Errorf("persist images: %w", err)
		}
	}
	w.progress(ctx, req, progressPersisted)

	payload := imageResult{Result: result}
	for _, row := range rows {
		payload.ImageIDs = append(payload.ImageIDs, row.ID)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &domain.RequestOutcome{
		ResultURL:     result.Images[0].URL,
		ResultJSON:    raw,
		RefinedPrompt: result.RefinedPrompt,
		Fallback:      result.Fallback,
	}, nil
}

type imageResult struct {
	*imagegen.Result
	ImageIDs []string `json:"image_ids,omitempty"`
}

type videoResult struct {
	URL         string `json:"url"`
	SourceURL   string `json:"source_url,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
	MIMEType    string `json:"mime_type"`
	TaskID      string `json:"task_id,omitempty"`
	Provider    string `json:"provider"`
	DurationSec int    `json:"duration_seconds"`
}

func (w *Worker) processVideo(ctx context.Context, req *domain.Request) (*domain.RequestOutcome, error) {
	if w.opts.Video == nil {
		return nil, errors.New("video generator not configured")
	}
	w.progress(ctx, req, progressVideoStart)
	step := progressVideoStart
	onPoll := func(status string) {
		if step+progressVideoStep <= progressVideoMax {
			step += progressVideoStep
		}
		w.logger.Debug().Str("request_id", req.ID).Str("status", status).Int("progress", step).Msg("video task polled")
		w.progress(ctx, req, step)
	}

	start := time.Now()
	asset, err := w.opts.Video.Generate(ctx, video.GenerateRequest{
		Prompt:         req.Prompt,
		SourceImageURL: req.SourceImageURL,
		AspectRatio:    req.AspectRatio,
		DurationSec:    defaultVideoDuration,
		RequestID:      req.ID,
	}, onPoll)
	w.record(ctx, domain.UsageEvent{
		UserID:    req.UserID,
		RequestID: req.ID,
		Type:      domain.UsageVideoGenerate,
		Success:   err == nil,
		Latency:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	w.progress(ctx, req, progressGenerated)

	out := videoResult{
		URL:         asset.URL,
		SourceURL:   asset.URL,
		MIMEType:    asset.MIMEType,
		TaskID:      asset.TaskID,
		Provider:    asset.Provider,
		DurationSec: defaultVideoDuration,
	}
	if out.MIMEType == "" {
		out.MIMEType = "video/mp4"
	}
	if key, err := w.mirrorVideo(ctx, req, asset.URL, out.MIMEType); err != nil {
		w.logger.Warn().Err(err).Str("request_id", req.ID).Msg("mirror video failed, keeping provider url")
	} else if key != "" {
		out.StorageKey = key
		out.URL = w.opts.Store.URL(key)
	}
	w.progress(ctx, req, progressPersisted)

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &domain.RequestOutcome{ResultURL: out.URL, ResultJSON: raw}, nil
}

// mirrorVideo copies the provider's expiring URL into the file store.
func (w *Worker) mirrorVideo(ctx context.Context, req *domain.Request, url, mime string) (string, error) {
	if w.opts.Store == nil || w.opts.Fetcher == nil {
		return "", nil
	}
	data, fetched, err := w.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(fetched, "video/") {
		mime = fetched
	}
	return w.opts.Store.Write(ctx, fmt.Sprintf("%s/%s/video%s", req.UserID, req.ID, storage.ExtensionFor(mime)), data)
}

func (w *Worker) processPost(ctx context.Context, req *domain.Request) (*domain.RequestOutcome, error) {
	if w.opts.Posts == nil {
		return nil, errors.New("post writer not configured")
	}
	platform := strings.ToLower(req.Provider)
	if !slices.Contains(post.Platforms, platform) {
		platform = ""
	}
	start := time.Now()
	out, err := w.opts.Posts.Write(ctx, post.Request{
		Topic:    req.Prompt,
		Tone:     req.Style,
		Platform: platform,
		Locale:   w.locale(ctx, req.UserID),
		ImageURL: req.SourceImageURL,
	})
	fallback := err == nil && out.Provider == "static"
	w.record(ctx, domain.UsageEvent{
		UserID:    req.UserID,
		RequestID: req.ID,
		Type:      domain.UsagePostGenerate,
		Success:   err == nil,
		Fallback:  fallback,
		Latency:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	w.progress(ctx, req, progressGenerated)
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	w.progress(ctx, req, progressPersisted)
	return &domain.RequestOutcome{ResultJSON: raw, Fallback: fallback}, nil
}

func (w *Worker) progress(ctx context.Context, req *domain.Request, value int) {
	if err := w.opts.Requests.ReportProgress(ctx, req, value); err != nil && ctx.Err() == nil {
		w.logger.Warn().Err(err).Str("request_id", req.ID).Int("progress", value).Msg("report progress")
	}
}

func (w *Worker) locale(ctx context.Context, userID string) string {
	if w.opts.Profiles == nil {
		return ""
	}
	p, err := w.opts.Profiles.Get(ctx, userID)
	if err != nil {
		return ""
	}
	return p.Locale
}

func (w *Worker) record(ctx context.Context, ev domain.UsageEvent) {
	if w.opts.Usage == nil {
		return
	}
	if err := w.opts.Usage.Record(ctx, ev); err != nil {
		w.logger.Warn().Err(err).Str("request_id", ev.RequestID).Msg("record usage")
	}
}

func errorMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "generation timed out"
	}
	if r := []rune(msg); len(r) > maxErrorMessage {
		msg = string(r[:maxErrorMessage])
	}
	return msg
}

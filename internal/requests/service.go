package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/infra"
)

// ErrQueueEmpty is returned by Claim when no request is pending.
var ErrQueueEmpty = errors.New("no pending request")

// QuotaConsumer deducts generations from a profile's daily allowance.
// RefundQuota returns a charge whose request never reached the queue.
type QuotaConsumer interface {
	ConsumeQuota(ctx context.Context, id string, amount int) (int, error)
	RefundQuota(ctx context.Context, id string, amount int) error
}

// CreateInput describes a new request.
type CreateInput struct {
	Kind           domain.RequestKind
	Prompt         string
	SourceImageURL string
	AspectRatio    string
	Quantity       int
	Style          string
	Provider       string
	Submit         bool
}

// UpdateInput holds the editable fields of a draft request. Nil fields are kept.
type UpdateInput struct {
	Prompt         *string
	SourceImageURL *string
	AspectRatio    *string
	Quantity       *int
	Style          *string
	Provider       *string
}

// Service owns the request lifecycle. Every state change is published.
type Service struct {
	repo        domain.RequestRepository
	quota       QuotaConsumer
	publisher   events.Publisher
	logger      infra.Logger
	maxAttempts int
}

func NewService(repo domain.RequestRepository, quota QuotaConsumer, publisher events.Publisher, logger infra.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:        repo,
		quota:       quota,
		publisher:   publisher,
		logger:      logger.With().Str("component", "requests").Logger(),
		maxAttempts: domain.MaxRequestAttempts,
	}
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Request, error) {
	if in.Kind == "" {
		in.Kind = domain.RequestKindImage
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, in.Kind)
	}
	prompt, err := domain.NormalizePrompt(in.Prompt)
	if err != nil {
		return nil, err
	}
	aspect, err := domain.NormalizeAspectRatio(in.AspectRatio)
	if err != nil {
		return nil, err
	}

	req := &domain.Request{
		UserID:         userID,
		Kind:           in.Kind,
		Status:         domain.RequestStatusNew,
		Prompt:         prompt,
		SourceImageURL: strings.TrimSpace(in.SourceImageURL),
		AspectRatio:    aspect,
		Quantity:       domain.ClampQuantity(in.Quantity),
		Style:          strings.TrimSpace(in.Style),
		Provider:       strings.TrimSpace(in.Provider),
	}
	if in.Kind != domain.RequestKindImage {
		req.Quantity = 1
	}
	if in.Submit {
		if err := s.consume(ctx, req); err != nil {
			return nil, err
		}
		req.Status = domain.RequestStatusPending
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if in.Submit {
			s.refund(ctx, req)
		}
		return nil, err
	}
	s.publish(ctx, events.TypeCreated, req)
	return req, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Request, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, filter.Kind)
	}
	return s.repo.List(ctx, filter)
}

// Update edits a request that has not been submitted yet.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*domain.Request, error) {
	req, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusNew {
		return nil, fmt.Errorf("%w: only new requests can be edited", domain.ErrInvalidTransition)
	}
	if in.Prompt != nil {
		if req.Prompt, err = domain.NormalizePrompt(*in.Prompt); err != nil {
			return nil, err
		}
	}
	if in.AspectRatio != nil {
		if req.AspectRatio, err = domain.NormalizeAspectRatio(*in.AspectRatio); err != nil {
			return nil, err
		}
	}
	if in.Quantity != nil && req.Kind == domain.RequestKindImage {
		req.Quantity = domain.ClampQuantity(*in.Quantity)
	}
	if in.SourceImageURL != nil {
		req.SourceImageURL = strings.TrimSpace(*in.SourceImageURL)
	}
	if in.Style != nil {
		req.Style = strings.TrimSpace(*in.Style)
	}
	if in.Provider != nil {
		req.Provider = strings.TrimSpace(*in.Provider)
	}
	if err := s.repo.UpdateDraft(ctx, req); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeUpdated, req)
	return req, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	req, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if req.Status == domain.RequestStatusProcessing {
		return fmt.Errorf("%w: request is processing", domain.ErrInvalidTransition)
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, events.TypeDeleted, req)
	return nil
}

// Submit queues a new request for the worker.
func (s *Service) Submit(ctx context.Context, userID, id string) (*domain.Request, error) {
	req, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusNew {
		return nil, fmt.Errorf("%w: cannot submit a %s request", domain.ErrInvalidTransition, req.Status)
	}
	return s.queue(ctx, req)
}

// Cancel fails a request that has not been picked up yet.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*domain.Request, error) {
	req, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusNew && req.Status != domain.RequestStatusPending {
		return nil, fmt.Errorf("%w: cannot cancel a %s request", domain.ErrInvalidTransition, req.Status)
	}
	updated, err := s.repo.Fail(ctx, req.ID, req.Status, "cancelled by user")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeFailed, updated)
	return updated, nil
}

// Retry requeues a failed request while attempts remain.
func (s *Service) Retry(ctx context.Context, userID, id string) (*domain.Request, error) {
	req, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusFailed {
		return nil, fmt.Errorf("%w: cannot retry a %s request", domain.ErrInvalidTransition, req.Status)
	}
	if req.Attempts+1 >= s.maxAttempts {
		return nil, fmt.Errorf("%w: retry limit of %d attempts reached", domain.ErrInvalidTransition, s.maxAttempts)
	}
	return s.queue(ctx, req)
}

// Stats counts the caller's requests, reporting zero for unused statuses.
func (s *Service) Stats(ctx context.Context, userID string) (domain.RequestStats, error) {
	counts, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := domain.RequestStats{
		domain.RequestStatusNew:        0,
		domain.RequestStatusPending:    0,
		domain.RequestStatusProcessing: 0,
		domain.RequestStatusCompleted:  0,
		domain.RequestStatusFailed:     0,
	}
	for status, n := range counts {
		stats[status] = n
	}
	return stats, nil
}

// Claim hands the oldest pending request to the caller as processing.
func (s *Service) Claim(ctx context.Context) (*domain.Request, error) {
	req, err := s.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}
	s.publish(ctx, events.TypeUpdated, req)
	return req, nil
}

// ReportProgress raises req's progress. Lower values are ignored and 100 is
// reserved for Complete.
func (s *Service) ReportProgress(ctx context.Context, req *domain.Request, progress int) error {
	if progress > 99 {
		progress = 99
	}
	if progress <= req.Progress {
		return nil
	}
	if err := s.repo.UpdateProgress(ctx, req.ID, progress); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	req.Progress = progress
	req.UpdatedAt = time.Now().UTC()
	s.publish(ctx, events.TypeProgress, req)
	return nil
}

func (s *Service) Complete(ctx context.Context, id string, outcome domain.RequestOutcome) (*domain.Request, error) {
	req, err := s.repo.Complete(ctx, id, outcome)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeCompleted, req)
	return req, nil
}

// Fail marks a processing request failed with message.
func (s *Service) Fail(ctx context.Context, id, message string) (*domain.Request, error) {
	req, err := s.repo.Fail(ctx, id, domain.RequestStatusProcessing, message)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeFailed, req)
	return req, nil
}

// RequeueStale returns processing requests idle for longer than olderThan to
// the queue, failing those out of attempts.
func (s *Service) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	reqs, err := s.repo.RequeueStale(ctx, int(olderThan.Seconds()), s.maxAttempts)
	if err != nil {
		return 0, err
	}
	for i := range reqs {
		s.publish(ctx, events.TypeForStatus(reqs[i].Status), &reqs[i])
	}
	return len(reqs), nil
}

func (s *Service) transition(ctx context.Context, req *domain.Request, to domain.RequestStatus) (*domain.Request, error) {
	updated, err := s.repo.Transition(ctx, req.ID, req.Status, to)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeForStatus(updated.Status), updated)
	return updated, nil
}

// queue charges req and moves it to pending. The charge is refunded when
// the status change loses a race or fails.
func (s *Service) queue(ctx context.Context, req *domain.Request) (*domain.Request, error) {
	if err := s.consume(ctx, req); err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, req, domain.RequestStatusPending)
	if err != nil {
		s.refund(ctx, req)
		return nil, err
	}
	return updated, nil
}

func (s *Service) consume(ctx context.Context, req *domain.Request) error {
	if s.quota == nil {
		return nil
	}
	if _, err := s.quota.ConsumeQuota(ctx, req.UserID, req.Quantity); err != nil {
		return err
	}
	return nil
}

func (s *Service) refund(ctx context.Context, req *domain.Request) {
	if s.quota == nil {
		return
	}
	if err := s.quota.RefundQuota(context.WithoutCancel(ctx), req.UserID, req.Quantity); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.ID).Int("amount", req.Quantity).Msg("refund quota")
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, req *domain.Request) {
	if err := s.publisher.Publish(ctx, events.FromRequest(t, req)); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID).Str("event", string(t)).Msg("publish request event")
	}
}

// Package requeststest provides an in-memory domain.RequestRepository for tests.
package requeststest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"studio/internal/domain"
)

// Repository mirrors the SQL guards of the Postgres repository in memory.
type Repository struct {
	mu    sync.Mutex
	seq   int
	now   time.Time
	items map[string]*domain.Request
}

func NewRepository() *Repository {
	return &Repository{
		now:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		items: make(map[string]*domain.Request),
	}
}

func (r *Repository) tick() time.Time {
	r.now = r.now.Add(time.Second)
	return r.now
}

// Put stores req as-is, assigning an ID when missing.
func (r *Repository) Put(req domain.Request) *domain.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == "" {
		r.seq++
		req.ID = fmt.Sprintf("req-%d", r.seq)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.tick()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	cp := req
	r.items[req.ID] = &cp
	out := cp
	return &out
}

// Snapshot returns a copy of the stored request.
func (r *Repository) Snapshot(id string) (domain.Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return domain.Request{}, false
	}
	return *req, true
}

func (r *Repository) Create(_ context.Context, req *domain.Request) error {
	stored := r.Put(*req)
	*req = *stored
	return nil
}

func (r *Repository) Get(_ context.Context, userID, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || (userID != "" && req.UserID != userID) {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *Repository) List(_ context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Request
	for _, req := range r.items {
		if req.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && req.Kind != filter.Kind {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Repository) UpdateDraft(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[req.ID]
	if !ok || stored.UserID != req.UserID || stored.Status != domain.RequestStatusNew {
		return domain.ErrInvalidTransition
	}
	stored.Prompt = req.Prompt
	stored.SourceImageURL = req.SourceImageURL
	stored.AspectRatio = req.AspectRatio
	stored.Quantity = req.Quantity
	stored.Style = req.Style
	stored.Provider = req.Provider
	stored.UpdatedAt = r.tick()
	*req = *stored
	return nil
}

func (r *Repository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || req.UserID != userID || req.Status == domain.RequestStatusProcessing {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Repository) Transition(_ context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || req.Status != from {
		return nil, domain.ErrInvalidTransition
	}
	if to == domain.RequestStatusPending {
		req.Progress = 0
		req.ErrorMessage = ""
		req.CompletedAt = nil
		if from == domain.RequestStatusFailed {
			req.Attempts++
		}
	}
	req.Status = to
	req.UpdatedAt = r.tick()
	cp := *req
	return &cp, nil
}

func (r *Repository) ClaimNext(_ context.Context) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *domain.Request
	for _, req := range r.items {
		if req.Status != domain.RequestStatusPending {
			continue
		}
		if next == nil || req.CreatedAt.Before(next.CreatedAt) {
			next = req
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	now := r.tick()
	next.Status = domain.RequestStatusProcessing
	next.Progress = 0
	next.StartedAt = &now
	next.UpdatedAt = now
	cp := *next
	return &cp, nil
}

func (r *Repository) UpdateProgress(_ context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || req.Status != domain.RequestStatusProcessing {
		return nil
	}
	if progress > 99 {
		progress = 99
	}
	if progress > req.Progress {
		req.Progress = progress
	}
	req.UpdatedAt = r.tick()
	return nil
}

func (r *Repository) Complete(_ context.Context, id string, outcome domain.RequestOutcome) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || req.Status != domain.RequestStatusProcessing {
		return nil, domain.ErrInvalidTransition
	}
	now := r.tick()
	req.Status = domain.RequestStatusCompleted
	req.Progress = 100
	req.ResultURL = outcome.ResultURL
	req.ResultJSON = outcome.ResultJSON
	req.RefinedPrompt = outcome.RefinedPrompt
	req.Fallback = outcome.Fallback
	req.ErrorMessage = ""
	req.CompletedAt = &now
	req.UpdatedAt = now
	cp := *req
	return &cp, nil
}

func (r *Repository) Fail(_ context.Context, id string, from domain.RequestStatus, message string) (*domain.Request, error) {
	if !from.CanTransition(domain.RequestStatusFailed) {
		return nil, domain.ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok || req.Status != from {
		return nil, domain.ErrInvalidTransition
	}
	now := r.tick()
	req.Status = domain.RequestStatusFailed
	req.ErrorMessage = message
	req.CompletedAt = &now
	req.UpdatedAt = now
	cp := *req
	return &cp, nil
}

// RequeueStale treats every processing request as stale; the age argument is ignored.
func (r *Repository) RequeueStale(_ context.Context, _ int, maxAttempts int) ([]domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Request
	for _, req := range r.items {
		if req.Status != domain.RequestStatusProcessing {
			continue
		}
		req.Attempts++
		req.Progress = 0
		req.UpdatedAt = r.tick()
		if req.Attempts >= maxAttempts {
			req.Status = domain.RequestStatusFailed
			req.ErrorMessage = "processing timed out"
			now := req.UpdatedAt
			req.CompletedAt = &now
		} else {
			req.Status = domain.RequestStatusPending
		}
		out = append(out, *req)
	}
	return out, nil
}

func (r *Repository) CountByStatus(_ context.Context, userID string) (domain.RequestStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := domain.RequestStats{}
	for _, req := range r.items {
		if req.UserID == userID {
			stats[req.Status]++
		}
	}
	return stats, nil
}

var _ domain.RequestRepository = (*Repository)(nil)

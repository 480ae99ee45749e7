package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RequestRepositoryPG implements domain.RequestRepository on top of the marker-aware SQL runner.
type RequestRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRequestRepository creates a request repository.
func NewRequestRepository(sql infra.SQLExecutor) *RequestRepositoryPG {
	return &RequestRepositoryPG{sql: sql}
}

// Create inserts req and refreshes it with the stored row.
func (r *RequestRepositoryPG) Create(ctx context.Context, req *domain.Request) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertRequest,
		req.UserID,
		string(req.Kind),
		string(req.Status),
		req.Prompt,
		req.SourceImageURL,
		req.AspectRatio,
		req.Quantity,
		req.Style,
		req.Provider,
	)
	stored, err := scanRequest(row)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	*req = *stored
	return nil
}

// Get loads a request. An empty userID skips the ownership check.
func (r *RequestRepositoryPG) Get(ctx context.Context, userID, id string) (*domain.Request, error) {
	return scanRequest(r.sql.QueryRow(ctx, sqlinline.QSelectRequest, id, userID))
}

func (r *RequestRepositoryPG) List(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)
	rows, err := r.sql.Query(ctx, sqlinline.QListRequests,
		filter.UserID,
		string(filter.Status),
		string(filter.Kind),
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

// UpdateDraft rewrites the editable fields of a request still in the new state.
func (r *RequestRepositoryPG) UpdateDraft(ctx context.Context, req *domain.Request) error {
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateRequestDraft,
		req.ID,
		req.UserID,
		req.Prompt,
		req.SourceImageURL,
		req.AspectRatio,
		req.Quantity,
		req.Style,
		req.Provider,
	)
	stored, err := scanRequest(row)
	if err != nil {
		if err == domain.ErrNotFound {
			return domain.ErrInvalidTransition
		}
		return err
	}
	*req = *stored
	return nil
}

func (r *RequestRepositoryPG) Delete(ctx context.Context, userID, id string) error {
	var deleted string
	if err := r.sql.QueryRow(ctx, sqlinline.QDeleteRequest, id, userID).Scan(&deleted); err != nil {
		if infra.IsNoRows(err) || infra.IsInvalidText(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *RequestRepositoryPG) Transition(ctx context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	return guardedRequest(r.sql.QueryRow(ctx, sqlinline.QTransitionRequest, id, string(from), string(to)))
}

// ClaimNext moves the oldest pending request to processing. It returns
// domain.ErrNotFound when the queue is empty.
func (r *RequestRepositoryPG) ClaimNext(ctx context.Context) (*domain.Request, error) {
	return scanRequest(r.sql.QueryRow(ctx, sqlinline.QWorkerClaimRequest))
}

func (r *RequestRepositoryPG) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateRequestProgress, id, progress)
	return err
}

func (r *RequestRepositoryPG) Complete(ctx context.Context, id string, outcome domain.RequestOutcome) (*domain.Request, error) {
	return guardedRequest(r.sql.QueryRow(ctx, sqlinline.QCompleteRequest,
		id,
		outcome.ResultURL,
		nullableBytes(outcome.ResultJSON),
		outcome.RefinedPrompt,
		outcome.Fallback,
	))
}

func (r *RequestRepositoryPG) Fail(ctx context.Context, id string, from domain.RequestStatus, message string) (*domain.Request, error) {
	if !from.CanTransition(domain.RequestStatusFailed) {
		return nil, domain.ErrInvalidTransition
	}
	return guardedRequest(r.sql.QueryRow(ctx, sqlinline.QFailRequest, id, string(from), truncate(message, 1000)))
}

// RequeueStale resets processing rows that stopped reporting progress.
func (r *RequestRepositoryPG) RequeueStale(ctx context.Context, olderThanSeconds int, maxAttempts int) ([]domain.Request, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QWorkerRequeueStale, olderThanSeconds, maxAttempts)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *RequestRepositoryPG) CountByStatus(ctx context.Context, userID string) (domain.RequestStats, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountRequestsByStatus, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := domain.RequestStats{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[domain.RequestStatus(status)] = count
	}
	return stats, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var (
		req    domain.Request
		kind   string
		status string
	)
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&kind,
		&status,
		&req.Progress,
		&req.Prompt,
		&req.SourceImageURL,
		&req.AspectRatio,
		&req.Quantity,
		&req.Style,
		&req.Provider,
		&req.ResultURL,
		&req.ResultJSON,
		&req.RefinedPrompt,
		&req.ErrorMessage,
		&req.Fallback,
		&req.Attempts,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.StartedAt,
		&req.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) || infra.IsInvalidText(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	req.Kind = domain.RequestKind(kind)
	req.Status = domain.RequestStatus(status)
	return &req, nil
}

// guardedRequest scans the result of a status-guarded update. No row means
// the stored status did not match.
func guardedRequest(row pgx.Row) (*domain.Request, error) {
	req, err := scanRequest(row)
	if err == domain.ErrNotFound {
		return nil, domain.ErrInvalidTransition
	}
	return req, err
}

func collectRequests(rows pgx.Rows) ([]domain.Request, error) {
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

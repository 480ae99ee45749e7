package repo

import (
	"context"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// UsageRepositoryPG implements domain.UsageRepository.
type UsageRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewUsageRepository(sql infra.SQLExecutor) *UsageRepositoryPG {
	return &UsageRepositoryPG{sql: sql}
}

func (r *UsageRepositoryPG) Record(ctx context.Context, event domain.UsageEvent) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUsageEvent,
		event.UserID,
		event.RequestID,
		string(event.Type),
		event.Success,
		event.Fallback,
		int(event.Latency.Milliseconds()),
	)
	return err
}

func (r *UsageRepositoryPG) Stats(ctx context.Context, userID string) (*domain.UsageStats, error) {
	var s domain.UsageStats
	if err := r.sql.QueryRow(ctx, sqlinline.QUsageStats, userID).Scan(
		&s.ImagesGenerated,
		&s.VideosGenerated,
		&s.PostsGenerated,
		&s.Success,
		&s.Failed,
		&s.FallbackServed,
		&s.Last24h,
		&s.AvgLatencyMS,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// ProfileRepositoryPG implements domain.ProfileRepository.
type ProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewProfileRepository(sql infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{sql: sql}
}

// Ensure creates the profile on first sight of an auth subject.
func (r *ProfileRepositoryPG) Ensure(ctx context.Context, id, email string) (*domain.Profile, error) {
	return scanProfile(r.sql.QueryRow(ctx, sqlinline.QEnsureProfile, id, email))
}

func (r *ProfileRepositoryPG) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return scanProfile(r.sql.QueryRow(ctx, sqlinline.QSelectProfile, id))
}

func (r *ProfileRepositoryPG) Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	return scanProfile(r.sql.QueryRow(ctx, sqlinline.QUpdateProfile,
		id,
		update.FullName,
		update.AvatarURL,
		update.BusinessName,
		update.Locale,
	))
}

// ConsumeQuota deducts amount from today's allowance and returns what is left.
func (r *ProfileRepositoryPG) ConsumeQuota(ctx context.Context, id string, amount int) (int, error) {
	var remaining int
	if err := r.sql.QueryRow(ctx, sqlinline.QConsumeQuota, id, amount).Scan(&remaining); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrQuotaExceeded
		}
		return 0, err
	}
	return remaining, nil
}

// RefundQuota returns amount to today's allowance. Charges from an earlier
// day are not refunded.
func (r *ProfileRepositoryPG) RefundQuota(ctx context.Context, id string, amount int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QRefundQuota, id, amount)
	return err
}

func (r *ProfileRepositoryPG) SetPlan(ctx context.Context, email string, plan domain.Plan) (*domain.Profile, error) {
	if !plan.Valid() {
		return nil, domain.ErrInvalidInput
	}
	return scanProfile(r.sql.QueryRow(ctx, sqlinline.QSetProfilePlan, email, string(plan), plan.DailyQuota()))
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p    domain.Profile
		plan string
	)
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.AvatarURL,
		&p.BusinessName,
		&p.Locale,
		&plan,
		&p.QuotaDaily,
		&p.QuotaUsed,
		&p.QuotaResetAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) || infra.IsInvalidText(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Plan = domain.Plan(plan)
	return &p, nil
}

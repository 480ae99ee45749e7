package domain

import "time"

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// DailyQuota returns the number of generations the plan allows per day.
func (p Plan) DailyQuota() int {
	if p == PlanPro {
		return 50
	}
	return 5
}

// Valid reports whether the plan is known.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// Profile is the account row keyed by the auth subject.
type Profile struct {
	ID           string
	Email        string
	FullName     string
	AvatarURL    string
	BusinessName string
	Locale       string
	Plan         Plan
	QuotaDaily   int
	QuotaUsed    int
	QuotaResetAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuotaRemaining returns how many generations are left today.
func (p Profile) QuotaRemaining() int {
	if left := p.QuotaDaily - p.QuotaUsed; left > 0 {
		return left
	}
	return 0
}

// ProfileUpdate holds the user-editable profile fields.
type ProfileUpdate struct {
	FullName     *string
	AvatarURL    *string
	BusinessName *string
	Locale       *string
}

package domain

import "context"

// RequestRepository persists request records. Status-changing methods only
// apply when the stored status equals from and report ErrInvalidTransition
// otherwise.
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, userID, id string) (*Request, error)
	List(ctx context.Context, filter RequestFilter) ([]Request, error)
	UpdateDraft(ctx context.Context, req *Request) error
	Delete(ctx context.Context, userID, id string) error
	Transition(ctx context.Context, id string, from, to RequestStatus) (*Request, error)
	ClaimNext(ctx context.Context) (*Request, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string, outcome RequestOutcome) (*Request, error)
	Fail(ctx context.Context, id string, from RequestStatus, message string) (*Request, error)
	RequeueStale(ctx context.Context, olderThanSeconds int, maxAttempts int) ([]Request, error)
	CountByStatus(ctx context.Context, userID string) (RequestStats, error)
}

// ProfileRepository persists profiles.
type ProfileRepository interface {
	Ensure(ctx context.Context, id, email string) (*Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, id string, update ProfileUpdate) (*Profile, error)
	ConsumeQuota(ctx context.Context, id string, amount int) (int, error)
	RefundQuota(ctx context.Context, id string, amount int) error
	SetPlan(ctx context.Context, email string, plan Plan) (*Profile, error)
}

// ImageRepository persists generated image rows.
type ImageRepository interface {
	Save(ctx context.Context, image *GeneratedImage) error
	Get(ctx context.Context, userID, id string) (*GeneratedImage, error)
	List(ctx context.Context, userID string, limit, offset int) ([]GeneratedImage, error)
	ListByRequest(ctx context.Context, userID, requestID string) ([]GeneratedImage, error)
	Delete(ctx context.Context, userID, id string) (*GeneratedImage, error)
}

// UsageRepository records usage events.
type UsageRepository interface {
	Record(ctx context.Context, event UsageEvent) error
	Stats(ctx context.Context, userID string) (*UsageStats, error)
}

package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidPrompt     = errors.New("invalid prompt")
	ErrInvalidInput      = errors.New("invalid input")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrProviderFailure   = errors.New("provider failure")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnsupportedHost   = errors.New("unsupported host")
)

package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrProgressRegression  = errors.New("progress must not decrease")
	ErrNoJob               = errors.New("no job available")
	ErrProviderFailure     = errors.New("provider failure")
	ErrUploadFailure       = errors.New("upload failure")
)

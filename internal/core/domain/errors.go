package domain

import "errors"

var (
	// ErrBusy reports lock contention. Callers surface "try again".
	ErrBusy              = errors.New("resource busy")
	ErrNotFound          = errors.New("resource not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrClockRegression is fatal for an id generator instance.
	ErrClockRegression = errors.New("clock moved backwards")
	// ErrSyncFailure marks a failed best-effort side effect (cache or index).
	ErrSyncFailure = errors.New("sync failure")
	ErrNotOwner    = errors.New("lease not owned")
)

package repository

import "errors"

var (
	// ErrNotFound lookup, update or delete matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrRegistrationReviewed approve/reject on a registration that is no longer pending.
	ErrRegistrationReviewed = errors.New("registration already reviewed")
	// ErrUnsupported operation the selected backend cannot perform.
	ErrUnsupported = errors.New("operation not supported by this backend")
)

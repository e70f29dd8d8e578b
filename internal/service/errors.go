package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation input failed validation; wrapped by *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials unknown contact or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden the caller's role lacks the capability.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError field -> failed rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, rule string) error {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

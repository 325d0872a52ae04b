// Package service coordinates the ledger, the account store and the oracle.
package service

import (
	"errors"
	"fmt"
)

// Service errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNoSession          = errors.New("no active session")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHistoryChanged     = errors.New("bet history changed since confirmation")
)

// ValidationError reports rejected user input. It never reaches the ledger.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

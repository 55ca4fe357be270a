package errors

import (
	"errors"
	"fmt"
)

// Common error types for the MaintBoard client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionNotFound    = errors.New("session not found")

	// Refresh errors
	ErrRefreshFailed      = errors.New("session refresh failed")
	ErrRefreshUnavailable = errors.New("refresh endpoint unavailable")
	ErrRefreshDisabled    = errors.New("session refresh disabled for this client")

	// Tenant errors
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidTenant  = errors.New("invalid tenant")
	ErrTenantMismatch = errors.New("tenant mismatch")

	// Storage errors
	ErrUnknownStorageKey = errors.New("unknown storage key")
	ErrInvalidValue      = errors.New("value failed schema validation")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

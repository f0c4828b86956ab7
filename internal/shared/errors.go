package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a payload failed local checks before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates an action on a change request that is already resolved.
	ErrConflict = errors.New("already resolved")
	// ErrForbidden indicates the actor lacks the manager capability.
	ErrForbidden = errors.New("manager capability required")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

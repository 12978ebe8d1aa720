// Package services holds the error taxonomy shared by the service layer.
// Repositories signal only repository.ErrNotFound; services translate that
// into the caller-facing vocabulary where the distinction matters.
package services

import "errors"

var (
	// ErrInvalidInput marks malformed caller input (bad UUIDs, empty
	// required fields, unparseable filters). Maps to 400.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidReference marks a request that names a nonexistent
	// identity on either side. Maps to 400.
	ErrInvalidReference = errors.New("invalid identity reference")

	// ErrInvalidTransition marks an accept or deny on a request that is
	// no longer pending. Maps to 400.
	ErrInvalidTransition = errors.New("request is not pending")

	// ErrUnauthorized marks an operation on a resource the caller's
	// subject does not own. Deliberately indistinguishable from the
	// resource not existing, so probing for foreign ids leaks nothing.
	// Maps to 401.
	ErrUnauthorized = errors.New("not authorized")
)

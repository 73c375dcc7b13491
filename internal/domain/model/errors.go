package model

import "errors"

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	// ErrDataUnavailable means the provider answered but has no data for the request.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTransportTimeout means an external call exceeded its deadline.
	ErrTransportTimeout = errors.New("transport timeout")
	// ErrConflict means the write would violate a uniqueness invariant.
	ErrConflict = errors.New("conflict")
	// ErrComposition means model output failed the structured contract.
	ErrComposition = errors.New("composition failed")
	// ErrValidation means the caller's input is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

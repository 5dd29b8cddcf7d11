package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist for the given tenant
// - ErrAlreadyExists: a row with the same key is already stored
// - ErrStateMismatch: a conditional write lost its compare-and-swap
// - ErrExpired: lease or record has expired
// - ErrUnavailable: backend temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrStateMismatch = errors.New("state mismatch")
	ErrExpired       = errors.New("expired")
	ErrUnavailable   = errors.New("unavailable")
)

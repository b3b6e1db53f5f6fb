// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist for this actor.
var ErrNotFound = errors.New("not found")

// ErrInvalidState indicates a state transition was attempted on an entity
// that is not in the required state (e.g. deciding a non-pending approval).
var ErrInvalidState = errors.New("invalid state for requested transition")

// ErrExpired indicates a decision was attempted on an approval past its TTL.
var ErrExpired = errors.New("approval request has expired")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionInactive      = errors.New("session not open for reservations")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidDuration      = errors.New("block duration out of range")
	ErrQuantityMismatch     = errors.New("quantity does not match hold")
	ErrHoldNotFound         = errors.New("hold not found")
	ErrHoldExpired          = errors.New("hold expired")
	ErrHoldNotActive        = errors.New("hold not active")
	ErrCapacityBelowUsage   = errors.New("capacity below committed and held")
	ErrSessionNameRequired  = errors.New("session name required")
	ErrInvalidCapacity      = errors.New("invalid capacity")
	ErrInvalidID            = errors.New("invalid id")
)

// CapacityError carries the availability observed when a reservation was
// denied, so callers can report an accurate figure.
type CapacityError struct {
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: %d available", e.Available)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

package domain

import "time"

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusConfirmed HoldStatus = "confirmed"
	HoldStatusReleased  HoldStatus = "released"
	HoldStatusExpired   HoldStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s HoldStatus) Terminal() bool {
	return s == HoldStatusConfirmed || s == HoldStatusReleased || s == HoldStatusExpired
}

// Hold is a time-bounded reservation of session capacity. Only active
// holds count toward a session's held counter.
type Hold struct {
	ID        string
	SessionID string
	Quantity  int
	Status    HoldStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

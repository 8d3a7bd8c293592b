package domain

import "time"

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session is the minimal session record this service needs to validate
// reservations. Title, venue and pricing live elsewhere.
type Session struct {
	ID            string
	Name          string
	StartsAt      time.Time
	Status        SessionStatus
	TotalCapacity int
}

// Bookable reports whether new holds may be placed on the session.
func (s Session) Bookable(now time.Time) bool {
	return s.Status == SessionStatusActive && s.StartsAt.After(now)
}

package domain

// CapacitySnapshot is a consistent read of one session's capacity counters.
// Invariant: Committed + Held <= Total.
type CapacitySnapshot struct {
	SessionID string
	Total     int
	Committed int
	Held      int
}

// Available is the quantity offerable to new reservation attempts.
func (s CapacitySnapshot) Available() int {
	return s.Total - s.Committed - s.Held
}

package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCapacitySnapshot_Available(t *testing.T) {
	snap := CapacitySnapshot{Total: 10, Committed: 4, Held: 3}
	if got := snap.Available(); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestHoldStatus_Terminal(t *testing.T) {
	cases := map[HoldStatus]bool{
		HoldStatusActive:    false,
		HoldStatusConfirmed: true,
		HoldStatusReleased:  true,
		HoldStatusExpired:   true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s: expected %v, got %v", status, want, got)
		}
	}
}

func TestSession_Bookable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		session Session
		want    bool
	}{
		{
			"active future session",
			Session{Status: SessionStatusActive, StartsAt: now.Add(time.Hour)},
			true,
		},
		{
			"cancelled session",
			Session{Status: SessionStatusCancelled, StartsAt: now.Add(time.Hour)},
			false,
		},
		{
			"already started",
			Session{Status: SessionStatusActive, StartsAt: now},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.session.Bookable(now); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCapacityError(t *testing.T) {
	err := &CapacityError{Available: 4}
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("CapacityError must match ErrInsufficientCapacity")
	}

	var capErr *CapacityError
	wrapped := errors.Join(errors.New("outer"), err)
	if !errors.As(wrapped, &capErr) || capErr.Available != 4 {
		t.Fatalf("expected to recover availability, got %+v", capErr)
	}
}

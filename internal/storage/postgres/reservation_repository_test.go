package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/domain"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/storage/postgres"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/testutil"
)

func TestReservationRepository_TryReserve(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())

	t.Run("reserves within capacity", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)

		ok, snap, err := repo.TryReserve(ctx, sessionID, 4)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !ok {
			t.Fatalf("expected reservation to succeed")
		}
		if snap.Held != 4 || snap.Available() != 6 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("denies without mutating and reports availability", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 5)
		if _, _, err := repo.TryReserve(ctx, sessionID, 3); err != nil {
			t.Fatalf("first reserve: %v", err)
		}

		ok, snap, err := repo.TryReserve(ctx, sessionID, 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok {
			t.Fatalf("expected denial")
		}
		if snap.Held != 3 || snap.Available() != 2 {
			t.Fatalf("unexpected snapshot after denial: %+v", snap)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		_, _, err := repo.TryReserve(ctx, uuid.NewString(), 1)
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		_, _, err := repo.TryReserve(ctx, "not-a-uuid", 1)
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("never oversells under contention", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Contended", 30)

		const workers = 60
		var wg sync.WaitGroup
		granted := make(chan int, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, _, err := repo.TryReserve(ctx, sessionID, 2)
				if err == nil && ok {
					granted <- 2
				}
			}()
		}
		wg.Wait()
		close(granted)

		total := 0
		for q := range granted {
			total += q
		}
		if total != 30 {
			t.Fatalf("expected exactly 30 seats granted, got %d", total)
		}
		snap, err := repo.Snapshot(ctx, sessionID)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.Held != 30 || snap.Available() != 0 {
			t.Fatalf("unexpected snapshot after contention: %+v", snap)
		}
	})
}

func TestReservationRepository_ReleaseHeld(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())

	t.Run("returns capacity", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)
		if _, _, err := repo.TryReserve(ctx, sessionID, 6); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		if err := repo.ReleaseHeld(ctx, sessionID, 6); err != nil {
			t.Fatalf("release: %v", err)
		}
		snap, _ := repo.Snapshot(ctx, sessionID)
		if snap.Held != 0 || snap.Available() != 10 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("clamps over-release", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)
		if _, _, err := repo.TryReserve(ctx, sessionID, 2); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		if err := repo.ReleaseHeld(ctx, sessionID, 5); err != nil {
			t.Fatalf("release: %v", err)
		}
		snap, _ := repo.Snapshot(ctx, sessionID)
		if snap.Held != 0 {
			t.Fatalf("expected held clamped to 0, got %d", snap.Held)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		err := repo.ReleaseHeld(ctx, uuid.NewString(), 1)
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestReservationRepository_CommitHeld(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())
	sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)
	if _, _, err := repo.TryReserve(ctx, sessionID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := repo.CommitHeld(ctx, sessionID, 4); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap, err := repo.Snapshot(ctx, sessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Committed != 4 || snap.Held != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := repo.CommitHeld(ctx, sessionID, 1); err == nil {
		t.Fatalf("expected error committing more than held")
	}
}

func TestReservationRepository_Holds(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())

	t.Run("create and get round trip", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)

		now := time.Now().UTC().Truncate(time.Microsecond)
		hold := domain.Hold{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Quantity:  3,
			Status:    domain.HoldStatusActive,
			CreatedAt: now,
			ExpiresAt: now.Add(15 * time.Minute),
		}
		if err := repo.CreateHold(ctx, hold); err != nil {
			t.Fatalf("create hold: %v", err)
		}

		got, err := repo.GetHold(ctx, hold.ID)
		if err != nil {
			t.Fatalf("get hold: %v", err)
		}
		if got.SessionID != sessionID || got.Quantity != 3 || got.Status != domain.HoldStatusActive {
			t.Fatalf("unexpected hold: %+v", got)
		}
		if !got.ExpiresAt.Equal(hold.ExpiresAt) {
			t.Fatalf("expires_at mismatch: got %v want %v", got.ExpiresAt, hold.ExpiresAt)
		}
	})

	t.Run("create rejects unknown session", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		hold := domain.Hold{
			ID:        uuid.NewString(),
			SessionID: uuid.NewString(),
			Quantity:  1,
			Status:    domain.HoldStatusActive,
			CreatedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(time.Minute),
		}
		if err := repo.CreateHold(ctx, hold); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("get unknown hold", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		if _, err := repo.GetHold(ctx, uuid.NewString()); !errors.Is(err, domain.ErrHoldNotFound) {
			t.Fatalf("expected ErrHoldNotFound, got %v", err)
		}
	})
}

func TestReservationRepository_TransitionHold(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())

	t.Run("single winner under contention", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)
		holdID := testutil.InsertHold(t, ctx, pool, domain.Hold{
			SessionID: sessionID,
			Quantity:  2,
			Status:    domain.HoldStatusActive,
			ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		})

		const workers = 20
		var wg sync.WaitGroup
		wins := make(chan domain.HoldStatus, workers)
		for i := 0; i < workers; i++ {
			to := domain.HoldStatusConfirmed
			if i%2 == 1 {
				to = domain.HoldStatusReleased
			}
			wg.Add(1)
			go func(to domain.HoldStatus) {
				defer wg.Done()
				ok, err := repo.TransitionHold(ctx, holdID, domain.HoldStatusActive, to)
				if err == nil && ok {
					wins <- to
				}
			}(to)
		}
		wg.Wait()
		close(wins)

		var winners []domain.HoldStatus
		for w := range wins {
			winners = append(winners, w)
		}
		if len(winners) != 1 {
			t.Fatalf("expected exactly one winner, got %d", len(winners))
		}
		got, err := repo.GetHold(ctx, holdID)
		if err != nil {
			t.Fatalf("get hold: %v", err)
		}
		if got.Status != winners[0] {
			t.Fatalf("stored status %s does not match winner %s", got.Status, winners[0])
		}
	})

	t.Run("stale from loses", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)
		holdID := testutil.InsertHold(t, ctx, pool, domain.Hold{
			SessionID: sessionID,
			Quantity:  2,
			Status:    domain.HoldStatusConfirmed,
			ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		})

		ok, err := repo.TransitionHold(ctx, holdID, domain.HoldStatusActive, domain.HoldStatusReleased)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if ok {
			t.Fatalf("expected transition to lose against terminal status")
		}
	})
}

func TestReservationRepository_ListExpirable(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())
	sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 20)

	now := time.Now().UTC()
	dueID := testutil.InsertHold(t, ctx, pool, domain.Hold{
		SessionID: sessionID, Quantity: 2, Status: domain.HoldStatusActive, ExpiresAt: now.Add(-time.Minute),
	})
	testutil.InsertHold(t, ctx, pool, domain.Hold{
		SessionID: sessionID, Quantity: 2, Status: domain.HoldStatusActive, ExpiresAt: now.Add(time.Hour),
	})
	testutil.InsertHold(t, ctx, pool, domain.Hold{
		SessionID: sessionID, Quantity: 2, Status: domain.HoldStatusReleased, ExpiresAt: now.Add(-time.Hour),
	})

	due, err := repo.ListExpirable(ctx, now, 10)
	if err != nil {
		t.Fatalf("list expirable: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due hold, got %d", len(due))
	}
	if due[0].ID != dueID {
		t.Fatalf("expected %s, got %s", dueID, due[0].ID)
	}
}

func TestReservationRepository_DeleteTerminalBefore(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())
	sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 20)

	now := time.Now().UTC()
	oldTerminal := testutil.InsertHold(t, ctx, pool, domain.Hold{
		SessionID: sessionID, Quantity: 2, Status: domain.HoldStatusExpired, ExpiresAt: now.Add(-time.Hour),
	})
	activeID := testutil.InsertHold(t, ctx, pool, domain.Hold{
		SessionID: sessionID, Quantity: 2, Status: domain.HoldStatusActive, ExpiresAt: now.Add(time.Hour),
	})

	deleted, err := repo.DeleteTerminalBefore(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if _, err := repo.GetHold(ctx, oldTerminal); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected terminal hold gone, got %v", err)
	}
	if _, err := repo.GetHold(ctx, activeID); err != nil {
		t.Fatalf("active hold must survive: %v", err)
	}
}

func TestReservationRepository_WithTxRollsBack(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewReservationRepository(pool, zerolog.Nop())
	sessionID := testutil.InsertSession(t, ctx, pool, "Workshop", 10)

	sentinel := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context) error {
		ok, _, err := repo.TryReserve(ctx, sessionID, 4)
		if err != nil || !ok {
			t.Fatalf("reserve inside tx: ok=%v err=%v", ok, err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	snap, err := repo.Snapshot(ctx, sessionID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Held != 0 {
		t.Fatalf("expected rollback to reclaim held capacity, got %+v", snap)
	}
}

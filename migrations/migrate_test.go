package migrations_test

import (
	"context"
	"testing"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/testutil"
	"github.com/NormanSinay/tradeconnect-v1-sub007/migrations"
)

func TestApply(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	// Applying twice must be a no-op the second time.
	for i := 0; i < 2; i++ {
		if err := migrations.Apply(ctx, pool); err != nil {
			t.Fatalf("apply %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"sessions", "session_capacity", "holds"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if !exists {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	var applied int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied < 2 {
		t.Fatalf("expected at least 2 recorded migrations, got %d", applied)
	}
}

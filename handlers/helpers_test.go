package handlers

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"moodboardAPI/internal/billing"
	"moodboardAPI/middleware"
)

// testPool mirrors the services package helper: connect to the integration
// database or skip.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database-backed test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS user_subscriptions (
		user_id                 TEXT PRIMARY KEY,
		subscription_id         TEXT,
		stripe_customer_id      TEXT,
		stripe_price_id         TEXT,
		subscription_status     TEXT NOT NULL DEFAULT 'inactive',
		subscription_tier       TEXT NOT NULL DEFAULT 'free',
		images_used_this_month  INTEGER NOT NULL DEFAULT 0,
		images_limit_per_month  INTEGER NOT NULL DEFAULT 0,
		last_reset_date         DATE NOT NULL DEFAULT CURRENT_DATE,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		_, err := pool.Exec(ctx, `DELETE FROM user_subscriptions WHERE user_id LIKE 'test_%'`)
		if err != nil {
			t.Logf("Warning: failed to clean up test subscriptions: %v", err)
		}
		pool.Close()
	})

	return pool
}

func testPlans() *billing.PlanTable {
	return billing.NewPlanTable(map[string]billing.Tier{
		"price_basic_123":  billing.TierBasic,
		"price_pro_456":    billing.TierPro,
		"price_yearly_789": billing.TierYearly,
	})
}

func seedSubscription(t *testing.T, pool *pgxpool.Pool, userID, subID string, status billing.Status) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO user_subscriptions (user_id, subscription_id, subscription_status,
			subscription_tier, images_used_this_month, images_limit_per_month,
			last_reset_date, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, 0, 20, CURRENT_DATE, NOW(), NOW())
	`, userID, subID, status, billing.TierBasic)
	if err != nil {
		t.Fatalf("Failed to seed subscription: %v", err)
	}
}

// authedContext stamps a request context the way ClerkAuthMiddleware would
// after verifying a token.
func authedContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, middleware.ClerkIDKey, userID)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodboardAPI/internal/billing"
)

func TestNeedsReset(t *testing.T) {
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	assert.False(t, needsReset(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, needsReset(now, now))

	// Different month, different year, and the same-month-last-year trap.
	assert.True(t, needsReset(time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), now))
	assert.True(t, needsReset(time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC), now))
	assert.True(t, needsReset(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), now))
}

func TestUsageCheckDefaultsForNewUser(t *testing.T) {
	pool := testPool(t)
	subSvc := NewSubscriptionService(pool, testPlans())
	usageSvc := NewUsageService(pool, subSvc)
	userID := testUserID(t)

	snapshot, err := usageSvc.Check(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, billing.StatusInactive, snapshot.Status)
	assert.Equal(t, billing.TierFree, snapshot.Tier)
	assert.Equal(t, 0, snapshot.ImagesUsed)
	assert.Equal(t, 0, snapshot.ImagesLimit)
	assert.False(t, snapshot.CanGenerate)
}

func TestUsageMonthlyRollover(t *testing.T) {
	pool := testPool(t)
	subSvc := NewSubscriptionService(pool, testPlans())
	usageSvc := NewUsageService(pool, subSvc)
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_roll", billing.StatusActive, 7, 20)
	require.NoError(t, subSvc.setLastResetDate(context.Background(), userID, time.Now().AddDate(0, -1, 0)))

	snapshot, err := usageSvc.Check(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, snapshot.WasReset)
	assert.Equal(t, 0, snapshot.ImagesUsed)
	assert.Equal(t, 20, snapshot.RemainingImages)
	assert.True(t, snapshot.CanGenerate)

	// The reset must have been persisted, not just reported.
	rec, err := subSvc.GetRecord(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ImagesUsedThisMonth)
	assert.Equal(t, time.Now().Month(), rec.LastResetDate.Month())
	assert.Equal(t, time.Now().Year(), rec.LastResetDate.Year())
}

func TestIncrementQuotaBoundary(t *testing.T) {
	pool := testPool(t)
	subSvc := NewSubscriptionService(pool, testPlans())
	usageSvc := NewUsageService(pool, subSvc)
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_quota", billing.StatusActive, 2, 3)

	// used=2, limit=3: one more fits exactly.
	resp, err := usageSvc.Increment(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ImagesUsed)
	assert.Equal(t, 0, resp.RemainingImages)

	// used=3, limit=3: rejected with the counters attached.
	_, err = usageSvc.Increment(context.Background(), userID)
	var limitErr *LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.ImagesUsed)
	assert.Equal(t, 3, limitErr.ImagesLimit)
}

func TestIncrementRequiresActiveSubscription(t *testing.T) {
	pool := testPool(t)
	subSvc := NewSubscriptionService(pool, testPlans())
	usageSvc := NewUsageService(pool, subSvc)

	for _, status := range []billing.Status{billing.StatusInactive, billing.StatusCancelled} {
		userID := testUserID(t)
		seedSubscription(t, pool, userID, "sub_blocked", status, 0, 20)

		_, err := usageSvc.Increment(context.Background(), userID)
		assert.True(t, errors.Is(err, ErrSubscriptionRequired), "status %s should block increment, got %v", status, err)
	}
}

func TestIncrementResetsStaleMonthFirst(t *testing.T) {
	pool := testPool(t)
	subSvc := NewSubscriptionService(pool, testPlans())
	usageSvc := NewUsageService(pool, subSvc)
	userID := testUserID(t)

	// At the limit, but the counter is from last month: the rollover runs
	// before the quota check, so this increment succeeds.
	seedSubscription(t, pool, userID, "sub_stale", billing.StatusActive, 20, 20)
	require.NoError(t, subSvc.setLastResetDate(context.Background(), userID, time.Now().AddDate(0, -1, 0)))

	resp, err := usageSvc.Increment(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ImagesUsed)
	assert.Equal(t, 19, resp.RemainingImages)
}

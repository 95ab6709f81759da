package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"moodboardAPI/internal/billing"
)

func fakeStripeSubscription(id string, status stripe.SubscriptionStatus, priceID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     id,
		Status: status,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: priceID}},
			},
		},
	}
}

func TestCheckSubscriptionNoRecord(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())

	resp, err := svc.CheckSubscription(context.Background(), testUserID(t))
	require.NoError(t, err)

	assert.False(t, resp.HasSubscription)
	assert.Equal(t, billing.StatusInactive, resp.SubscriptionStatus)
	assert.Equal(t, "local", resp.Source)
}

func TestCheckSubscriptionFallsBackOnStripeFailure(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_fallback1", billing.StatusActive, 0, 20)

	svc.fetchStripeSubscription = func(id string) (*stripe.Subscription, error) {
		return nil, errors.New("stripe is down")
	}

	resp, err := svc.CheckSubscription(context.Background(), userID)
	require.NoError(t, err, "provider failure must not propagate")

	assert.True(t, resp.HasSubscription, "last known local status wins")
	assert.Equal(t, billing.StatusActive, resp.SubscriptionStatus)
	assert.Equal(t, "local", resp.Source)
	assert.Empty(t, resp.StripeStatus)
}

func TestCheckSubscriptionSkipsUnresolvedCheckoutSession(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "cs_test_pending", billing.StatusActive, 0, 20)

	called := false
	svc.fetchStripeSubscription = func(id string) (*stripe.Subscription, error) {
		called = true
		return nil, errors.New("should not be called")
	}

	resp, err := svc.CheckSubscription(context.Background(), userID)
	require.NoError(t, err)

	assert.False(t, called, "checkout session ids are not fetchable")
	assert.Equal(t, "local", resp.Source)
	assert.Equal(t, billing.StatusActive, resp.SubscriptionStatus)
}

func TestCheckSubscriptionPersistsDivergence(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_diverge1", billing.StatusActive, 0, 20)

	svc.fetchStripeSubscription = func(id string) (*stripe.Subscription, error) {
		return fakeStripeSubscription(id, stripe.SubscriptionStatusPastDue, "price_basic_123"), nil
	}

	resp, err := svc.CheckSubscription(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, billing.StatusCancelled, resp.SubscriptionStatus)
	assert.Equal(t, "past_due", resp.StripeStatus)
	assert.Equal(t, "stripe", resp.Source)

	rec, err := svc.GetRecord(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, rec.Status)
}

func TestHandleCheckoutCompletedThenSubscriptionUpdate(t *testing.T) {
	// The end-to-end webhook sequence: checkout activates the record, a later
	// past_due update cancels it.
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	svc.fetchStripeSubscription = func(id string) (*stripe.Subscription, error) {
		return fakeStripeSubscription(id, stripe.SubscriptionStatusActive, "price_pro_456"), nil
	}

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), userID, "sub_e2e_abc", "cus_123"))

	rec, err := svc.GetRecord(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "sub_e2e_abc", rec.SubscriptionIDValue())
	assert.Equal(t, billing.StatusActive, rec.Status)
	assert.Equal(t, billing.TierPro, rec.Tier)
	assert.Equal(t, 100, rec.ImagesLimitPerMonth)

	updated, err := svc.UpdateFromStripeSubscription(context.Background(),
		fakeStripeSubscription("sub_e2e_abc", stripe.SubscriptionStatusPastDue, "price_pro_456"))
	require.NoError(t, err)
	assert.True(t, updated)

	rec, err = svc.GetRecord(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, rec.Status)
}

func TestForceStatusIdempotentReplay(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_replay1", billing.StatusActive, 0, 20)

	// Deliver the same deletion twice; the record lands on cancelled both
	// times with no other side effects.
	for i := 0; i < 2; i++ {
		found, err := svc.ForceStatusBySubscriptionID(context.Background(), "sub_replay1", billing.StatusCancelled)
		require.NoError(t, err)
		assert.True(t, found)

		rec, err := svc.GetRecord(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, rec.Status)
		assert.Equal(t, 0, rec.ImagesUsedThisMonth)
	}
}

func TestForceStatusUnknownSubscription(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())

	found, err := svc.ForceStatusBySubscriptionID(context.Background(), "sub_nobody_has_this", billing.StatusCancelled)
	require.NoError(t, err, "unknown subscriptions are a no-op, not an error")
	assert.False(t, found)
}

func TestUpdateFromStripeSubscriptionUnknownID(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())

	updated, err := svc.UpdateFromStripeSubscription(context.Background(),
		fakeStripeSubscription("sub_unknown_xyz", stripe.SubscriptionStatusActive, "price_basic_123"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestCancelForUser(t *testing.T) {
	pool := testPool(t)
	svc := NewSubscriptionService(pool, testPlans())
	userID := testUserID(t)

	seedSubscription(t, pool, userID, "sub_cancel1", billing.StatusActive, 5, 20)

	remoteCancelled := ""
	svc.cancelStripeSubscription = func(id string) (*stripe.Subscription, error) {
		remoteCancelled = id
		return fakeStripeSubscription(id, stripe.SubscriptionStatusCanceled, "price_basic_123"), nil
	}

	resp, err := svc.CancelForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "sub_cancel1", remoteCancelled)

	rec, err := svc.GetRecord(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, rec.Status)
	assert.Equal(t, billing.TierFree, rec.Tier)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v76"
	stripesub "github.com/stripe/stripe-go/v76/subscription"

	"moodboardAPI/internal/billing"
	"moodboardAPI/internal/types/subscription"
)

// ErrRecordNotFound is returned when no subscription row exists for a user.
var ErrRecordNotFound = errors.New("subscription record not found")

// SubscriptionService owns the user_subscriptions table. Every mutation of
// subscription_status goes through billing.MapStripeStatus.
type SubscriptionService struct {
	db    *pgxpool.Pool
	plans *billing.PlanTable

	// Stripe calls are injectable so tests can simulate provider failures.
	fetchStripeSubscription  func(id string) (*stripe.Subscription, error)
	cancelStripeSubscription func(id string) (*stripe.Subscription, error)
}

func NewSubscriptionService(db *pgxpool.Pool, plans *billing.PlanTable) *SubscriptionService {
	return &SubscriptionService{
		db:    db,
		plans: plans,
		fetchStripeSubscription: func(id string) (*stripe.Subscription, error) {
			params := &stripe.SubscriptionParams{}
			params.AddExpand("items.data.price.product")
			return stripesub.Get(id, params)
		},
		cancelStripeSubscription: func(id string) (*stripe.Subscription, error) {
			return stripesub.Cancel(id, nil)
		},
	}
}

// SetStripeSubscriptionFetcher swaps the Stripe lookup. Tests use it to
// simulate provider behavior without network access.
func (s *SubscriptionService) SetStripeSubscriptionFetcher(fn func(id string) (*stripe.Subscription, error)) {
	s.fetchStripeSubscription = fn
}

const recordColumns = `user_id, subscription_id, stripe_customer_id, stripe_price_id,
	subscription_status, subscription_tier, images_used_this_month,
	images_limit_per_month, last_reset_date, created_at, updated_at`

func scanRecord(row pgx.Row) (*subscription.Record, error) {
	rec := &subscription.Record{}
	err := row.Scan(
		&rec.UserID,
		&rec.SubscriptionID,
		&rec.StripeCustomerID,
		&rec.StripePriceID,
		&rec.Status,
		&rec.Tier,
		&rec.ImagesUsedThisMonth,
		&rec.ImagesLimitPerMonth,
		&rec.LastResetDate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription record: %w", err)
	}
	return rec, nil
}

func (s *SubscriptionService) GetRecord(ctx context.Context, userID string) (*subscription.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM user_subscriptions WHERE user_id = $1`
	return scanRecord(s.db.QueryRow(ctx, query, userID))
}

// EnsureRecord creates the default row (inactive, free tier, zero usage) if
// the user has none yet, and returns the current row either way.
func (s *SubscriptionService) EnsureRecord(ctx context.Context, userID string) (*subscription.Record, error) {
	query := `
	INSERT INTO user_subscriptions (user_id, subscription_status, subscription_tier,
		images_used_this_month, images_limit_per_month, last_reset_date, created_at, updated_at)
	VALUES ($1, $2, $3, 0, $4, CURRENT_DATE, NOW(), NOW())
	ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, query, userID, billing.StatusInactive, billing.TierFree, billing.LimitForTier(billing.TierFree))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure subscription record: %w", err)
	}
	return s.GetRecord(ctx, userID)
}

// CheckSubscription is the reconciler. It fetches the authoritative status
// from Stripe when the stored identifier allows it, persists any divergence,
// and degrades to the last known local status when Stripe is unreachable.
func (s *SubscriptionService) CheckSubscription(ctx context.Context, userID string) (*subscription.CheckResponse, error) {
	rec, err := s.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return &subscription.CheckResponse{
				HasSubscription:    false,
				SubscriptionStatus: billing.StatusInactive,
				SubscriptionTier:   billing.TierFree,
				Source:             "local",
				Message:            "No subscription on record",
			}, nil
		}
		return nil, err
	}

	subID := rec.SubscriptionIDValue()
	if subID == "" {
		return &subscription.CheckResponse{
			HasSubscription:    false,
			SubscriptionStatus: billing.StatusInactive,
			SubscriptionTier:   rec.Tier,
			Source:             "local",
			Message:            "No subscription on record",
		}, nil
	}

	if !billing.IsSubscriptionID(subID) {
		// Most likely a checkout session identifier the webhook has not
		// resolved yet. There is nothing to fetch from Stripe for it.
		return &subscription.CheckResponse{
			HasSubscription:    rec.Status == billing.StatusActive,
			SubscriptionStatus: rec.Status,
			SubscriptionTier:   rec.Tier,
			Source:             "local",
			Message:            "Checkout not yet resolved, returning local status",
		}, nil
	}

	stripeSub, err := s.fetchStripeSubscription(subID)
	if err != nil {
		// Availability over consistency: a Stripe blip must not take the
		// subscription gate down with it.
		log.Printf("CheckSubscription: Stripe fetch failed for %s, falling back to local status: %v", subID, err)
		return &subscription.CheckResponse{
			HasSubscription:    rec.Status == billing.StatusActive,
			SubscriptionStatus: rec.Status,
			SubscriptionTier:   rec.Tier,
			Source:             "local",
			Message:            "Locally sourced, not verified",
		}, nil
	}

	mapped := billing.MapStripeStatus(string(stripeSub.Status))
	plan := s.planFromStripeSubscription(stripeSub)

	if mapped != rec.Status || plan.Tier != rec.Tier {
		if err := s.applyStatusAndPlan(ctx, userID, mapped, plan, priceIDOf(stripeSub)); err != nil {
			log.Printf("CheckSubscription: failed to persist reconciled status for %s: %v", userID, err)
		}
	}

	return &subscription.CheckResponse{
		HasSubscription:    mapped == billing.StatusActive,
		SubscriptionStatus: mapped,
		SubscriptionTier:   plan.Tier,
		StripeStatus:       string(stripeSub.Status),
		Source:             "stripe",
		Message:            "Subscription status verified with Stripe",
	}, nil
}

// HandleCheckoutCompleted upserts the user record after a completed checkout.
// subOrSessionID may still be the checkout session identifier when Stripe has
// not attached the subscription object to the event yet; the next
// subscription.updated webhook or reconciliation pass resolves it.
func (s *SubscriptionService) HandleCheckoutCompleted(ctx context.Context, userID, subOrSessionID, customerID string) error {
	status := billing.StatusActive
	plan := billing.Plan{Tier: billing.TierBasic, Limit: billing.LimitForTier(billing.TierBasic)}
	priceID := ""

	if billing.IsSubscriptionID(subOrSessionID) {
		if stripeSub, err := s.fetchStripeSubscription(subOrSessionID); err != nil {
			log.Printf("HandleCheckoutCompleted: could not fetch %s, storing defaults: %v", subOrSessionID, err)
		} else {
			status = billing.MapStripeStatus(string(stripeSub.Status))
			plan = s.planFromStripeSubscription(stripeSub)
			priceID = priceIDOf(stripeSub)
		}
	}

	query := `
	INSERT INTO user_subscriptions (user_id, subscription_id, stripe_customer_id, stripe_price_id,
		subscription_status, subscription_tier, images_used_this_month, images_limit_per_month,
		last_reset_date, created_at, updated_at)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, 0, $7, CURRENT_DATE, NOW(), NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		subscription_id = EXCLUDED.subscription_id,
		stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, user_subscriptions.stripe_customer_id),
		stripe_price_id = COALESCE(EXCLUDED.stripe_price_id, user_subscriptions.stripe_price_id),
		subscription_status = EXCLUDED.subscription_status,
		subscription_tier = EXCLUDED.subscription_tier,
		images_limit_per_month = EXCLUDED.images_limit_per_month,
		updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query, userID, subOrSessionID, customerID, priceID, status, plan.Tier, plan.Limit)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for user %s: %w", userID, err)
	}
	return nil
}

// UpdateFromStripeSubscription recomputes local status from a subscription
// object pushed by the webhook. Returns false when no local record references
// the subscription identifier.
func (s *SubscriptionService) UpdateFromStripeSubscription(ctx context.Context, stripeSub *stripe.Subscription) (bool, error) {
	userID, err := s.userIDBySubscriptionID(ctx, stripeSub.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	mapped := billing.MapStripeStatus(string(stripeSub.Status))
	plan := s.planFromStripeSubscription(stripeSub)
	if err := s.applyStatusAndPlan(ctx, userID, mapped, plan, priceIDOf(stripeSub)); err != nil {
		return false, err
	}
	return true, nil
}

// ForceStatusBySubscriptionID sets the status directly, for events that imply
// a status rather than carry one (subscription deleted, invoice outcomes).
func (s *SubscriptionService) ForceStatusBySubscriptionID(ctx context.Context, subID string, status billing.Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET subscription_status = $2, updated_at = NOW()
		WHERE subscription_id = $1
	`, subID, status)
	if err != nil {
		return false, fmt.Errorf("failed to force status for subscription %s: %w", subID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelForUser cancels at Stripe when a real subscription identifier is
// stored and always marks the local record cancelled. A failed remote cancel
// is reported in the message but does not keep the local state active.
func (s *SubscriptionService) CancelForUser(ctx context.Context, userID string) (*subscription.CancelResponse, error) {
	rec, err := s.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return &subscription.CancelResponse{Success: false, Message: "No subscription to cancel"}, nil
		}
		return nil, err
	}

	message := "Subscription cancelled"
	subID := rec.SubscriptionIDValue()
	if billing.IsSubscriptionID(subID) {
		if _, err := s.cancelStripeSubscription(subID); err != nil {
			log.Printf("CancelForUser: Stripe cancel failed for %s: %v", subID, err)
			message = "Cancelled locally, Stripe cancellation pending"
		}
	}

	_, err = s.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET subscription_status = $2, subscription_tier = $3, images_limit_per_month = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, billing.StatusCancelled, billing.TierFree, billing.LimitForTier(billing.TierFree))
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription for user %s: %w", userID, err)
	}

	return &subscription.CancelResponse{Success: true, Message: message}, nil
}

// DeleteForUser removes the subscription row as part of account deletion.
func (s *SubscriptionService) DeleteForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM user_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription for user %s: %w", userID, err)
	}
	return nil
}

func (s *SubscriptionService) userIDBySubscriptionID(ctx context.Context, subID string) (string, error) {
	var userID string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM user_subscriptions WHERE subscription_id = $1`, subID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRecordNotFound
		}
		return "", fmt.Errorf("failed to look up subscription %s: %w", subID, err)
	}
	return userID, nil
}

func (s *SubscriptionService) applyStatusAndPlan(ctx context.Context, userID string, status billing.Status, plan billing.Plan, priceID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET subscription_status = $2, subscription_tier = $3, images_limit_per_month = $4,
			stripe_price_id = COALESCE(NULLIF($5, ''), stripe_price_id), updated_at = NOW()
		WHERE user_id = $1
	`, userID, status, plan.Tier, plan.Limit, priceID)
	if err != nil {
		return fmt.Errorf("failed to update subscription status for user %s: %w", userID, err)
	}
	return nil
}

func (s *SubscriptionService) planFromStripeSubscription(stripeSub *stripe.Subscription) billing.Plan {
	priceID := priceIDOf(stripeSub)
	productName := ""
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 {
		price := stripeSub.Items.Data[0].Price
		if price != nil && price.Product != nil {
			productName = price.Product.Name
		}
	}
	return s.plans.ResolveWithProductName(priceID, productName)
}

func priceIDOf(stripeSub *stripe.Subscription) string {
	if stripeSub.Items == nil || len(stripeSub.Items.Data) == 0 || stripeSub.Items.Data[0].Price == nil {
		return ""
	}
	return stripeSub.Items.Data[0].Price.ID
}

// setLastResetDate backdates a row; tests use it to stage month rollovers.
func (s *SubscriptionService) setLastResetDate(ctx context.Context, userID string, date time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE user_subscriptions SET last_reset_date = $2 WHERE user_id = $1`, userID, date)
	return err
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v76"
	stripesub "github.com/stripe/stripe-go/v76/subscription"

	"moodboardAPI/internal/billing"
	"moodboardAPI/internal/types/subscription"
)

// RepairService hosts the idempotent batch corrections for the two known
// corruption patterns: serialized objects stored where an opaque token
// belongs, and records stuck on inactive despite a live billing relationship.
type RepairService struct {
	db    *pgxpool.Pool
	plans *billing.PlanTable

	fetchStripeSubscription func(id string) (*stripe.Subscription, error)
}

func NewRepairService(db *pgxpool.Pool, plans *billing.PlanTable) *RepairService {
	return &RepairService{
		db:    db,
		plans: plans,
		fetchStripeSubscription: func(id string) (*stripe.Subscription, error) {
			params := &stripe.SubscriptionParams{}
			params.AddExpand("items.data.price.product")
			return stripesub.Get(id, params)
		},
	}
}

// extractSubscriptionID recovers the opaque token from a subscription_id that
// was written as a serialized Stripe object. It only returns a value when the
// inner id has the expected token shape; anything else is an error and the
// caller leaves the record untouched.
func extractSubscriptionID(raw string) (string, error) {
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("not parseable as JSON: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("no id field in serialized value")
	}
	if !billing.IsSubscriptionID(parsed.ID) {
		return "", fmt.Errorf("extracted value %q is not a subscription identifier", parsed.ID)
	}
	return parsed.ID, nil
}

// FixCorruptedIDs scans for subscription_id values that look like serialized
// structured data and rewrites the ones it can safely normalize. Safe to
// re-run: once the data is clean the scan matches nothing.
func (s *RepairService) FixCorruptedIDs(ctx context.Context) (*subscription.RepairResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, subscription_id FROM user_subscriptions
		WHERE subscription_id LIKE '{%'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for corrupted subscription ids: %w", err)
	}
	defer rows.Close()

	type corrupted struct{ userID, raw string }
	var candidates []corrupted
	for rows.Next() {
		var c corrupted
		if err := rows.Scan(&c.userID, &c.raw); err != nil {
			return nil, fmt.Errorf("failed to scan corrupted row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corrupted rows: %w", err)
	}

	result := &subscription.RepairResult{Errors: []string{}, Details: []string{}}
	for _, c := range candidates {
		result.Processed++

		clean, err := extractSubscriptionID(c.raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("user %s: %v", c.userID, err))
			continue
		}

		_, err = s.db.Exec(ctx, `
			UPDATE user_subscriptions SET subscription_id = $2, updated_at = NOW()
			WHERE user_id = $1
		`, c.userID, clean)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("user %s: update failed: %v", c.userID, err))
			continue
		}

		result.Fixed++
		result.Details = append(result.Details, fmt.Sprintf("user %s: subscription_id rewritten to %s", c.userID, clean))
	}

	log.Printf("FixCorruptedIDs: processed=%d fixed=%d errors=%d", result.Processed, result.Fixed, len(result.Errors))
	return result, nil
}

// FixStaleStatuses finds records that hold a subscription identifier yet sit
// on inactive, asks Stripe for the truth, and re-maps. Per-record provider
// failures are reported without aborting the batch.
func (s *RepairService) FixStaleStatuses(ctx context.Context) (*subscription.RepairResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, subscription_id FROM user_subscriptions
		WHERE subscription_id IS NOT NULL AND subscription_id <> ''
			AND subscription_status = $1
	`, billing.StatusInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for stale statuses: %w", err)
	}
	defer rows.Close()

	type stale struct{ userID, subID string }
	var candidates []stale
	for rows.Next() {
		var c stale
		if err := rows.Scan(&c.userID, &c.subID); err != nil {
			return nil, fmt.Errorf("failed to scan stale row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stale rows: %w", err)
	}

	result := &subscription.RepairResult{Errors: []string{}, Details: []string{}}
	for _, c := range candidates {
		result.Processed++

		if !billing.IsSubscriptionID(c.subID) {
			result.Errors = append(result.Errors, fmt.Sprintf("user %s: %q is not fetchable (unresolved checkout session?)", c.userID, c.subID))
			continue
		}

		stripeSub, err := s.fetchStripeSubscription(c.subID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("user %s: Stripe lookup failed: %v", c.userID, err))
			continue
		}

		mapped := billing.MapStripeStatus(string(stripeSub.Status))
		if mapped == billing.StatusInactive {
			result.Details = append(result.Details, fmt.Sprintf("user %s: status %s maps to inactive, no change", c.userID, stripeSub.Status))
			continue
		}

		plan := billing.Plan{Tier: billing.TierFree, Limit: billing.LimitForTier(billing.TierFree)}
		if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
			price := stripeSub.Items.Data[0].Price
			productName := ""
			if price.Product != nil {
				productName = price.Product.Name
			}
			plan = s.plans.ResolveWithProductName(price.ID, productName)
		}

		_, err = s.db.Exec(ctx, `
			UPDATE user_subscriptions
			SET subscription_status = $2, subscription_tier = $3, images_limit_per_month = $4, updated_at = NOW()
			WHERE user_id = $1
		`, c.userID, mapped, plan.Tier, plan.Limit)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("user %s: update failed: %v", c.userID, err))
			continue
		}

		result.Updated++
		result.Details = append(result.Details, fmt.Sprintf("user %s: status %s -> %s", c.userID, billing.StatusInactive, mapped))
	}

	log.Printf("FixStaleStatuses: processed=%d updated=%d errors=%d", result.Processed, result.Updated, len(result.Errors))
	return result, nil
}

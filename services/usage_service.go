package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moodboardAPI/internal/billing"
	"moodboardAPI/internal/types/usage"
)

// ErrSubscriptionRequired is returned by Increment when the user has no
// active subscription. It is a business-rule rejection, not an infrastructure
// failure, and handlers map it to a 403.
var ErrSubscriptionRequired = errors.New("subscription required")

// LimitReachedError is returned by Increment when the monthly quota is
// exhausted. It carries the counters so the caller can render them.
type LimitReachedError struct {
	ImagesUsed  int
	ImagesLimit int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("image limit reached (%d/%d)", e.ImagesUsed, e.ImagesLimit)
}

// UsageService tracks the monthly per-user generation quota.
type UsageService struct {
	db            *pgxpool.Pool
	subscriptions *SubscriptionService

	// now is injectable so rollover tests can pin the clock.
	now func() time.Time
}

func NewUsageService(db *pgxpool.Pool, subscriptions *SubscriptionService) *UsageService {
	return &UsageService{db: db, subscriptions: subscriptions, now: time.Now}
}

// needsReset reports whether the counter belongs to a previous calendar
// month. Day-of-month is irrelevant; only month and year are compared.
func needsReset(lastReset, now time.Time) bool {
	return lastReset.Month() != now.Month() || lastReset.Year() != now.Year()
}

// loadWithRollover fetches the record (creating the default row if missing)
// and applies the monthly reset when the stored reset date is stale. The
// reset is persisted immediately so concurrent callers converge on zero.
func (s *UsageService) loadWithRollover(ctx context.Context, userID string) (rec recordView, wasReset bool, err error) {
	rec, err = s.loadRecordView(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err = s.subscriptions.EnsureRecord(ctx, userID); err != nil {
			return recordView{}, false, err
		}
		rec, err = s.loadRecordView(ctx, userID)
	}
	if err != nil {
		return recordView{}, false, fmt.Errorf("failed to load usage for user %s: %w", userID, err)
	}

	if !needsReset(rec.LastResetDate, s.now()) {
		return rec, false, nil
	}

	_, err = s.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET images_used_this_month = 0, last_reset_date = CURRENT_DATE, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return recordView{}, false, fmt.Errorf("failed to reset monthly usage for user %s: %w", userID, err)
	}

	log.Printf("Monthly usage reset for user %s (was %d)", userID, rec.ImagesUsed)
	rec.ImagesUsed = 0
	rec.LastResetDate = s.now()
	return rec, true, nil
}

type recordView struct {
	Status        billing.Status
	Tier          billing.Tier
	ImagesUsed    int
	ImagesLimit   int
	LastResetDate time.Time
}

func (s *UsageService) loadRecordView(ctx context.Context, userID string) (recordView, error) {
	var rec recordView
	err := s.db.QueryRow(ctx, `
		SELECT subscription_status, subscription_tier, images_used_this_month,
			images_limit_per_month, last_reset_date
		FROM user_subscriptions WHERE user_id = $1
	`, userID).Scan(&rec.Status, &rec.Tier, &rec.ImagesUsed, &rec.ImagesLimit, &rec.LastResetDate)
	return rec, err
}

// Check returns the usage snapshot. Apart from the rollover reset it never
// mutates anything, so callers may poll it freely.
func (s *UsageService) Check(ctx context.Context, userID string) (*usage.Snapshot, error) {
	rec, wasReset, err := s.loadWithRollover(ctx, userID)
	if err != nil {
		return nil, err
	}

	remaining := rec.ImagesLimit - rec.ImagesUsed
	if remaining < 0 {
		remaining = 0
	}

	return &usage.Snapshot{
		Tier:            rec.Tier,
		Status:          rec.Status,
		ImagesUsed:      rec.ImagesUsed,
		ImagesLimit:     rec.ImagesLimit,
		RemainingImages: remaining,
		CanGenerate:     rec.Status == billing.StatusActive && remaining > 0,
		WasReset:        wasReset,
	}, nil
}

// Increment consumes one image from the monthly quota. The quota check and
// the bump happen in a single conditional UPDATE evaluated by Postgres, so
// two racing calls cannot both slip past the limit.
func (s *UsageService) Increment(ctx context.Context, userID string) (*usage.IncrementResponse, error) {
	rec, _, err := s.loadWithRollover(ctx, userID)
	if err != nil {
		return nil, err
	}

	var used, limit int
	err = s.db.QueryRow(ctx, `
		UPDATE user_subscriptions
		SET images_used_this_month = images_used_this_month + 1, updated_at = NOW()
		WHERE user_id = $1
			AND subscription_status = $2
			AND images_used_this_month < images_limit_per_month
		RETURNING images_used_this_month, images_limit_per_month
	`, userID, billing.StatusActive).Scan(&used, &limit)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The guard rejected the row. Classify using the state we read.
			if rec.Status != billing.StatusActive {
				return nil, ErrSubscriptionRequired
			}
			return nil, &LimitReachedError{ImagesUsed: rec.ImagesUsed, ImagesLimit: rec.ImagesLimit}
		}
		return nil, fmt.Errorf("failed to increment usage for user %s: %w", userID, err)
	}

	return &usage.IncrementResponse{
		Success:         true,
		ImagesUsed:      used,
		ImagesLimit:     limit,
		RemainingImages: limit - used,
		Message:         fmt.Sprintf("%d of %d images used this month", used, limit),
	}, nil
}

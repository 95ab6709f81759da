package subscription

import (
	"time"

	"moodboardAPI/internal/billing"
)

// Record is the per-user subscription row. It is owned exclusively by the
// backend; the frontend only ever sees derived views of it.
type Record struct {
	UserID              string         `json:"userId" db:"user_id"`
	SubscriptionID      *string        `json:"subscriptionId" db:"subscription_id"`
	StripeCustomerID    *string        `json:"stripeCustomerId" db:"stripe_customer_id"`
	StripePriceID       *string        `json:"stripePriceId" db:"stripe_price_id"`
	Status              billing.Status `json:"subscriptionStatus" db:"subscription_status"`
	Tier                billing.Tier   `json:"subscriptionTier" db:"subscription_tier"`
	ImagesUsedThisMonth int            `json:"imagesUsedThisMonth" db:"images_used_this_month"`
	ImagesLimitPerMonth int            `json:"imagesLimitPerMonth" db:"images_limit_per_month"`
	LastResetDate       time.Time      `json:"lastResetDate" db:"last_reset_date"`
	CreatedAt           time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time      `json:"updatedAt" db:"updated_at"`
}

// SubscriptionIDValue returns the stored identifier or "".
func (r *Record) SubscriptionIDValue() string {
	if r.SubscriptionID == nil {
		return ""
	}
	return *r.SubscriptionID
}

type CheckRequest struct {
	UserID string `json:"userId"`
}

// CheckResponse is the reconciler's answer. StripeStatus is only set when the
// status was freshly fetched from Stripe; Source tells the caller whether the
// answer was verified remotely ("stripe") or is the last known local state
// ("local").
type CheckResponse struct {
	HasSubscription    bool           `json:"hasSubscription"`
	SubscriptionStatus billing.Status `json:"subscriptionStatus"`
	SubscriptionTier   billing.Tier   `json:"subscriptionTier"`
	StripeStatus       string         `json:"stripeStatus,omitempty"`
	Source             string         `json:"source"`
	Message            string         `json:"message"`
}

type CancelRequest struct {
	UserID string `json:"userId"`
}

type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CheckoutRequest struct {
	UserID  string `json:"userId"`
	PriceID string `json:"priceId"`
}

// CheckoutResponse carries the hosted checkout URL plus a QR code PNG
// (base64) so the SPA can hand the checkout off to a phone.
type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
	QRCodePNG   string `json:"qrCodePng"`
}

// RepairResult is the summary both repair jobs return.
type RepairResult struct {
	Processed int      `json:"processed"`
	Fixed     int      `json:"fixed,omitempty"`
	Updated   int      `json:"updated,omitempty"`
	Errors    []string `json:"errors"`
	Details   []string `json:"details"`
}

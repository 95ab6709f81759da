package billing

// Status is the local subscription status stored on the user record.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusCancelled Status = "cancelled"
)

// MapStripeStatus converts a Stripe subscription status into the local
// three-value status. This is the only place that mapping lives; the webhook
// handler, the reconciler and the repair jobs all go through it.
func MapStripeStatus(stripeStatus string) Status {
	switch stripeStatus {
	case "active", "trialing":
		return StatusActive
	case "canceled", "unpaid", "past_due", "incomplete_expired":
		return StatusCancelled
	case "incomplete":
		return StatusInactive
	default:
		return StatusInactive
	}
}

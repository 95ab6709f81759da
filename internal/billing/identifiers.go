package billing

import (
	"regexp"
	"strings"
)

// Stripe subscription identifiers are opaque "sub_..." tokens. A checkout
// session identifier ("cs_...") can sit in the subscription_id column
// transiently, between the redirect and the webhook that resolves it.
var subscriptionIDPattern = regexp.MustCompile(`^sub_[A-Za-z0-9]+$`)

// IsSubscriptionID reports whether the value names a real subscription object
// that can be fetched from Stripe.
func IsSubscriptionID(id string) bool {
	return subscriptionIDPattern.MatchString(id)
}

// IsCheckoutSessionID reports whether the value is a transient checkout
// session identifier awaiting webhook resolution.
func IsCheckoutSessionID(id string) bool {
	return strings.HasPrefix(id, "cs_")
}

package billing

import (
	"log"
	"os"
	"strings"
)

// Tier is a named service level determining the monthly generation quota.
type Tier string

const (
	TierFree   Tier = "free"
	TierBasic  Tier = "basic"
	TierPro    Tier = "pro"
	TierYearly Tier = "yearly"
)

// Plan pairs a tier with its monthly image limit.
type Plan struct {
	Tier  Tier
	Limit int
}

var tierLimits = map[Tier]int{
	TierFree:   0,
	TierBasic:  20,
	TierPro:    100,
	TierYearly: 100,
}

// PlanTable maps Stripe price IDs to plans. It is built once at startup from
// the STRIPE_PRICE_* environment variables.
type PlanTable struct {
	byPriceID map[string]Plan
}

// LoadPlanTable reads the configured price IDs. Unset price variables are
// logged and skipped so a partially configured environment still boots.
func LoadPlanTable() *PlanTable {
	t := &PlanTable{byPriceID: make(map[string]Plan)}

	for envVar, tier := range map[string]Tier{
		"STRIPE_PRICE_BASIC":  TierBasic,
		"STRIPE_PRICE_PRO":    TierPro,
		"STRIPE_PRICE_YEARLY": TierYearly,
	} {
		priceID := os.Getenv(envVar)
		if priceID == "" {
			log.Printf("%s not set, tier %s unavailable for price lookup", envVar, tier)
			continue
		}
		t.byPriceID[priceID] = Plan{Tier: tier, Limit: tierLimits[tier]}
	}

	return t
}

// NewPlanTable builds a table from an explicit mapping. Used by tests and by
// callers that resolve configuration themselves.
func NewPlanTable(prices map[string]Tier) *PlanTable {
	t := &PlanTable{byPriceID: make(map[string]Plan)}
	for priceID, tier := range prices {
		t.byPriceID[priceID] = Plan{Tier: tier, Limit: tierLimits[tier]}
	}
	return t
}

// Resolve returns the plan for a Stripe price ID, falling back to the free
// plan for unknown prices.
func (t *PlanTable) Resolve(priceID string) Plan {
	if plan, ok := t.byPriceID[priceID]; ok {
		return plan
	}
	return Plan{Tier: TierFree, Limit: tierLimits[TierFree]}
}

// ResolveWithProductName first resolves by price ID and, when that fails,
// falls back to matching the product name. The name match is a legacy path
// kept for records written before the price table existed; new code should
// always have a price ID.
func (t *PlanTable) ResolveWithProductName(priceID, productName string) Plan {
	if plan, ok := t.byPriceID[priceID]; ok {
		return plan
	}

	name := strings.ToLower(productName)
	switch {
	case strings.Contains(name, "yearly") || strings.Contains(name, "annual"):
		return Plan{Tier: TierYearly, Limit: tierLimits[TierYearly]}
	case strings.Contains(name, "pro"):
		return Plan{Tier: TierPro, Limit: tierLimits[TierPro]}
	case strings.Contains(name, "basic"):
		return Plan{Tier: TierBasic, Limit: tierLimits[TierBasic]}
	}
	return Plan{Tier: TierFree, Limit: tierLimits[TierFree]}
}

// LimitForTier returns the monthly image limit for a tier, defaulting to the
// free tier for unknown values.
func LimitForTier(tier Tier) int {
	if limit, ok := tierLimits[tier]; ok {
		return limit
	}
	return tierLimits[TierFree]
}

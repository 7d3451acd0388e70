package plans

import (
	"fmt"
	"sort"
	"strings"

	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/enums"
)

const (
	// Unlimited marks a limit that is never enforced.
	Unlimited int64 = -1
	// NoDailyCap marks a tier that is only capped monthly.
	NoDailyCap int64 = -2
)

// Feature names a boolean capability granted by a tier.
type Feature string

const (
	FeatureBasicOptimize    Feature = "basic_optimize"
	FeatureAnalyze          Feature = "analyze"
	FeatureHistory          Feature = "history"
	FeaturePriorityQueue    Feature = "priority_queue"
	FeatureAdvancedAnalysis Feature = "advanced_analysis"
	FeatureTeamSeats        Feature = "team_seats"
	FeatureSharedLibrary    Feature = "shared_library"
)

// Limits are the quotas and capabilities attached to a tier.
type Limits struct {
	DailyLimit   int64
	MonthlyLimit int64
	Features     []Feature
}

// DailyCapped reports whether daily usage is enforced.
func (l Limits) DailyCapped() bool {
	return l.DailyLimit >= 0
}

// MonthlyCapped reports whether monthly usage is enforced.
func (l Limits) MonthlyCapped() bool {
	return l.MonthlyLimit >= 0
}

// HasFeature reports whether the feature is granted.
func (l Limits) HasFeature(feature Feature) bool {
	for _, f := range l.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PriceIDs are the billing provider prices that sell a tier.
type PriceIDs struct {
	Monthly string
	Yearly  string
}

// For returns the price for the cycle.
func (p PriceIDs) For(cycle enums.BillingCycle) string {
	if cycle == enums.BillingCycleYearly {
		return p.Yearly
	}
	return p.Monthly
}

// Tier is one catalog entry.
type Tier struct {
	ID       enums.PlanTier
	Name     string
	Limits   Limits
	PriceIDs PriceIDs
	MinSeats int64
	MaxSeats int64
}

// SeatBased reports whether the tier is sold per seat.
func (t Tier) SeatBased() bool {
	return t.MaxSeats > 1
}

var defaultTiers = []Tier{
	{
		ID:   enums.PlanTierFree,
		Name: "Free",
		Limits: Limits{
			DailyLimit:   10,
			MonthlyLimit: 300,
			Features:     []Feature{FeatureBasicOptimize},
		},
		MinSeats: 1,
		MaxSeats: 1,
	},
	{
		ID:   enums.PlanTierStarter,
		Name: "Starter",
		Limits: Limits{
			DailyLimit:   NoDailyCap,
			MonthlyLimit: 1000,
			Features:     []Feature{FeatureBasicOptimize, FeatureAnalyze, FeatureHistory},
		},
		MinSeats: 1,
		MaxSeats: 1,
	},
	{
		ID:   enums.PlanTierPro,
		Name: "Pro",
		Limits: Limits{
			DailyLimit:   NoDailyCap,
			MonthlyLimit: 5000,
			Features: []Feature{
				FeatureBasicOptimize, FeatureAnalyze, FeatureHistory,
				FeaturePriorityQueue, FeatureAdvancedAnalysis,
			},
		},
		MinSeats: 1,
		MaxSeats: 1,
	},
	{
		ID:   enums.PlanTierTeam,
		Name: "Team",
		Limits: Limits{
			DailyLimit:   Unlimited,
			MonthlyLimit: Unlimited,
			Features: []Feature{
				FeatureBasicOptimize, FeatureAnalyze, FeatureHistory,
				FeaturePriorityQueue, FeatureAdvancedAnalysis,
				FeatureTeamSeats, FeatureSharedLibrary,
			},
		},
		MinSeats: 3,
		MaxSeats: 100,
	},
}

type priceRef struct {
	plan  enums.PlanTier
	cycle enums.BillingCycle
}

// Catalog is the immutable plan table. It is safe for concurrent use.
type Catalog struct {
	tiers   map[enums.PlanTier]Tier
	byPrice map[string]priceRef
}

// New builds the catalog from the compiled-in tiers and the supplied prices.
// A price id may sell exactly one tier/cycle pair.
func New(prices map[enums.PlanTier]PriceIDs) (*Catalog, error) {
	c := &Catalog{
		tiers:   make(map[enums.PlanTier]Tier, len(defaultTiers)),
		byPrice: map[string]priceRef{},
	}
	for _, tier := range defaultTiers {
		if _, dup := c.tiers[tier.ID]; dup {
			return nil, fmt.Errorf("duplicate plan tier %q", tier.ID)
		}
		tier.Limits.Features = append([]Feature(nil), tier.Limits.Features...)
		tier.PriceIDs = prices[tier.ID]
		for _, cycle := range []enums.BillingCycle{enums.BillingCycleMonthly, enums.BillingCycleYearly} {
			priceID := strings.TrimSpace(tier.PriceIDs.For(cycle))
			if priceID == "" {
				continue
			}
			if existing, dup := c.byPrice[priceID]; dup {
				return nil, fmt.Errorf("price id %q is assigned to both %s/%s and %s/%s", priceID, existing.plan, existing.cycle, tier.ID, cycle)
			}
			c.byPrice[priceID] = priceRef{plan: tier.ID, cycle: cycle}
		}
		c.tiers[tier.ID] = tier
	}
	for plan := range prices {
		if _, ok := c.tiers[plan]; !ok {
			return nil, fmt.Errorf("prices configured for unknown plan %q", plan)
		}
	}
	return c, nil
}

// NewFromConfig reads the price ids from the Stripe configuration.
func NewFromConfig(cfg config.StripeConfig) (*Catalog, error) {
	return New(map[enums.PlanTier]PriceIDs{
		enums.PlanTierStarter: {Monthly: cfg.PriceStarterMonthly, Yearly: cfg.PriceStarterYearly},
		enums.PlanTierPro:     {Monthly: cfg.PriceProMonthly, Yearly: cfg.PriceProYearly},
		enums.PlanTierTeam:    {Monthly: cfg.PriceTeamMonthly, Yearly: cfg.PriceTeamYearly},
	})
}

// LimitsFor returns the limits of a known plan. Unknown plans are a
// programming error and panic.
func (c *Catalog) LimitsFor(plan enums.PlanTier) Limits {
	tier, ok := c.tiers[plan]
	if !ok {
		panic(fmt.Sprintf("plans: unknown plan tier %q", plan))
	}
	return tier.Limits
}

// Lookup returns the tier for plan.
func (c *Catalog) Lookup(plan enums.PlanTier) (Tier, bool) {
	tier, ok := c.tiers[plan]
	return tier, ok
}

// PlanForExternalPriceID maps a provider price to the tier and cycle it sells.
// The bool is false when no tier references the price.
func (c *Catalog) PlanForExternalPriceID(priceID string) (enums.PlanTier, enums.BillingCycle, bool) {
	ref, ok := c.byPrice[strings.TrimSpace(priceID)]
	if !ok {
		return "", "", false
	}
	return ref.plan, ref.cycle, true
}

// PriceIDFor returns the configured price for plan and cycle.
func (c *Catalog) PriceIDFor(plan enums.PlanTier, cycle enums.BillingCycle) (string, bool) {
	tier, ok := c.tiers[plan]
	if !ok {
		return "", false
	}
	priceID := strings.TrimSpace(tier.PriceIDs.For(cycle))
	return priceID, priceID != ""
}

// Tiers returns every tier ordered from free to team.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for _, tier := range c.tiers {
		out = append(out, tier)
	}
	order := map[enums.PlanTier]int{}
	for i, plan := range enums.PlanTiers() {
		order[plan] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].ID] < order[out[j].ID] })
	return out
}

// ParsePlan is a convenience over enums.ParsePlanTier restricted to catalog tiers.
func (c *Catalog) ParsePlan(raw string) (enums.PlanTier, error) {
	plan, err := enums.ParsePlanTier(raw)
	if err != nil {
		return "", err
	}
	if _, ok := c.tiers[plan]; !ok {
		return "", fmt.Errorf("plan %q is not in the catalog", plan)
	}
	return plan, nil
}

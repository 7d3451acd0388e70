package entitlements

import (
	"context"

	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/metrics"
)

// Reasons reported on denied decisions.
const (
	ReasonMonthlyLimit = "monthly limit reached"
	ReasonDailyLimit   = "daily limit reached"
)

// Decision answers whether one more metered action is allowed right now.
// Remaining values are plans.Unlimited when the limit is not enforced.
type Decision struct {
	Allowed          bool
	Reason           string
	RemainingDaily   int64
	RemainingMonthly int64
	PlanTier         enums.PlanTier
}

type ledgerReader interface {
	GetOrCreate(ctx context.Context, userID string) (*models.UsageLedger, error)
}

// Gate is the stateless entitlement decision layer.
type Gate struct {
	ledger  ledgerReader
	catalog *plans.Catalog
	metrics *metrics.EntitlementMetrics
}

// NewGate wires the gate to the usage ledger and plan catalog.
func NewGate(ledger ledgerReader, catalog *plans.Catalog, m *metrics.EntitlementMetrics) (*Gate, error) {
	if ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage ledger required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	return &Gate{ledger: ledger, catalog: catalog, metrics: m}, nil
}

// CheckLimit loads the rolled-over ledger and evaluates it. Nothing is cached:
// calling it after an increment reflects the new counters. Storage failures
// are returned, never treated as allowed.
func (g *Gate) CheckLimit(ctx context.Context, userID string) (Decision, error) {
	ledger, err := g.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	decision := Evaluate(*ledger, g.catalog.LimitsFor(ledger.PlanTier))
	g.metrics.ObserveDecision(decision.PlanTier.String(), decision.Allowed)
	return decision, nil
}

// Features returns the capabilities of the user's current plan.
func (g *Gate) Features(ctx context.Context, userID string) ([]plans.Feature, error) {
	ledger, err := g.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := g.catalog.LimitsFor(ledger.PlanTier)
	return append([]plans.Feature(nil), limits.Features...), nil
}

// Evaluate applies the limit rules in order: monthly cap, then daily cap.
func Evaluate(ledger models.UsageLedger, limits plans.Limits) Decision {
	decision := Decision{
		PlanTier:         ledger.PlanTier,
		RemainingDaily:   remaining(limits.DailyLimit, ledger.DailyUsage),
		RemainingMonthly: remaining(limits.MonthlyLimit, ledger.MonthlyUsage),
	}

	if limits.MonthlyCapped() && ledger.MonthlyUsage >= limits.MonthlyLimit {
		decision.Reason = ReasonMonthlyLimit
		decision.RemainingDaily = 0
		decision.RemainingMonthly = 0
		return decision
	}
	if limits.DailyCapped() && ledger.DailyUsage >= limits.DailyLimit {
		decision.Reason = ReasonDailyLimit
		decision.RemainingDaily = 0
		return decision
	}

	decision.Allowed = true
	return decision
}

func remaining(limit, used int64) int64 {
	if limit < 0 {
		return plans.Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

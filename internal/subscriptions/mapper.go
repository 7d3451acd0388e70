package subscriptions

import (
	"strings"
	"time"

	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

// Snapshot is the provider-neutral view of a subscription payload.
type Snapshot struct {
	SubscriptionID     string
	CustomerID         string
	PriceID            string
	Status             enums.SubscriptionStatus
	Quantity           int64
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// FromStripe flattens a Stripe subscription. Price, quantity and billing
// period come from the first item, which must carry a price.
func FromStripe(sub *stripe.Subscription) (Snapshot, error) {
	snap, err := Identify(sub)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.PriceID == "" {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeReconciliation, "subscription price missing")
	}
	return snap, nil
}

// Identify flattens a Stripe subscription requiring only its id. Deletion
// payloads may arrive without items.
func Identify(sub *stripe.Subscription) (Snapshot, error) {
	if sub == nil {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeReconciliation, "subscription payload is nil")
	}
	if strings.TrimSpace(sub.ID) == "" {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeReconciliation, "subscription id missing")
	}

	snap := Snapshot{
		SubscriptionID:    sub.ID,
		Status:            MapStatus(string(sub.Status)),
		Quantity:          1,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        toTimePtr(sub.CanceledAt),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		if item.Quantity > 0 {
			snap.Quantity = item.Quantity
		}
		snap.CurrentPeriodStart = toTimePtr(item.CurrentPeriodStart)
		snap.CurrentPeriodEnd = toTimePtr(item.CurrentPeriodEnd)
	}
	return snap, nil
}

// Build maps a snapshot into a new subscription row for the user.
func Build(userID string, snap Snapshot, plan enums.PlanTier, cycle enums.BillingCycle) *models.Subscription {
	sub := &models.Subscription{UserID: userID}
	Apply(sub, snap, plan, cycle)
	return sub
}

// Apply overwrites the provider-owned fields of target with the snapshot.
func Apply(target *models.Subscription, snap Snapshot, plan enums.PlanTier, cycle enums.BillingCycle) {
	target.StripeSubscriptionID = snap.SubscriptionID
	if snap.CustomerID != "" {
		target.StripeCustomerID = snap.CustomerID
	}
	target.PriceID = snap.PriceID
	target.Status = snap.Status
	target.PlanTier = plan
	target.BillingCycle = cycle
	target.Quantity = snap.Quantity
	target.CurrentPeriodStart = snap.CurrentPeriodStart
	target.CurrentPeriodEnd = snap.CurrentPeriodEnd
	target.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	target.CanceledAt = snap.CanceledAt
}

// MapStatus normalizes a provider status. Unknown values map to incomplete so
// they never grant entitlements.
func MapStatus(raw string) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if mapped, ok := statusAliases[normalized]; ok {
		return mapped
	}
	if parsed, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return parsed
	}
	return enums.SubscriptionStatusIncomplete
}

var statusAliases = map[string]enums.SubscriptionStatus{
	"cancelled": enums.SubscriptionStatusCanceled,
	"trial":     enums.SubscriptionStatusTrialing,
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

package subscriptions

import (
	"testing"
	"time"

	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

func TestMapStatus_KnownValues(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  enums.SubscriptionStatus
	}{
		{name: "active", value: "active", want: enums.SubscriptionStatusActive},
		{name: "upper trialing", value: "TRIALING", want: enums.SubscriptionStatusTrialing},
		{name: "past due with hyphen", value: "past-due", want: enums.SubscriptionStatusPastDue},
		{name: "british cancelled", value: "cancelled", want: enums.SubscriptionStatusCanceled},
		{name: "incomplete expired", value: "incomplete_expired", want: enums.SubscriptionStatusIncompleteExpired},
		{name: "paused", value: "paused", want: enums.SubscriptionStatusPaused},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MapStatus(tc.value); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMapStatus_UnknownValueNeverGrants(t *testing.T) {
	got := MapStatus("brand_new_status")
	if got != enums.SubscriptionStatusIncomplete {
		t.Fatalf("expected incomplete, got %s", got)
	}
	if got.GrantsEntitlements() {
		t.Fatal("unknown status must not grant entitlements")
	}
}

func TestFromStripe(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &stripe.Subscription{
		ID:                "sub_123",
		Status:            stripe.SubscriptionStatusActive,
		Customer:          &stripe.Customer{ID: "cus_123"},
		CancelAtPeriodEnd: true,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Price:              &stripe.Price{ID: "price_team_m"},
			Quantity:           5,
			CurrentPeriodStart: start.Unix(),
			CurrentPeriodEnd:   end.Unix(),
		}}},
	}

	snap, err := FromStripe(sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.PriceID != "price_team_m" || snap.CustomerID != "cus_123" || snap.Quantity != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.CurrentPeriodEnd == nil || !snap.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("unexpected period end %v", snap.CurrentPeriodEnd)
	}
	if snap.CanceledAt != nil {
		t.Fatalf("expected nil canceled at, got %v", snap.CanceledAt)
	}

	model := Build("uid-1", snap, enums.PlanTierTeam, enums.BillingCycleMonthly)
	if model.UserID != "uid-1" || model.PlanTier != enums.PlanTierTeam || !model.CancelAtPeriodEnd {
		t.Fatalf("unexpected model %+v", model)
	}
	if model.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected status %s", model.Status)
	}
}

func TestFromStripe_RequiresPrice(t *testing.T) {
	_, err := FromStripe(&stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusActive})
	if !pkgerrors.Is(err, pkgerrors.CodeReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if _, err := FromStripe(nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
}

func TestApplyKeepsCustomerWhenMissing(t *testing.T) {
	snap := Snapshot{SubscriptionID: "sub_1", PriceID: "price_pro_m", Status: enums.SubscriptionStatusPastDue, Quantity: 1}
	target := Build("uid-1", Snapshot{SubscriptionID: "sub_1", CustomerID: "cus_1", PriceID: "price_pro_m", Quantity: 1}, enums.PlanTierPro, enums.BillingCycleMonthly)
	Apply(target, snap, enums.PlanTierPro, enums.BillingCycleMonthly)
	if target.StripeCustomerID != "cus_1" {
		t.Fatalf("customer id should be kept, got %q", target.StripeCustomerID)
	}
	if target.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("unexpected status %s", target.Status)
	}
}

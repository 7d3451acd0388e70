package enums

import "testing"

func TestParsePlanTier(t *testing.T) {
	cases := map[string]PlanTier{
		"free":    PlanTierFree,
		" Pro ":   PlanTierPro,
		"STARTER": PlanTierStarter,
		"team":    PlanTierTeam,
	}
	for raw, want := range cases {
		got, err := ParsePlanTier(raw)
		if err != nil {
			t.Fatalf("ParsePlanTier(%q) unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParsePlanTier(%q) = %q want %q", raw, got, want)
		}
	}
	if _, err := ParsePlanTier("enterprise"); err == nil {
		t.Fatal("expected unknown tier to fail")
	}
}

func TestParseBillingCycleAliases(t *testing.T) {
	for _, raw := range []string{"yearly", "annual", "year", " YEARLY "} {
		if got, err := ParseBillingCycle(raw); err != nil || got != BillingCycleYearly {
			t.Fatalf("ParseBillingCycle(%q) = %q, %v", raw, got, err)
		}
	}
	if got, err := ParseBillingCycle("month"); err != nil || got != BillingCycleMonthly {
		t.Fatalf("ParseBillingCycle(month) = %q, %v", got, err)
	}
	if _, err := ParseBillingCycle("weekly"); err == nil {
		t.Fatal("expected weekly to be rejected")
	}
}

func TestParseDowngradePolicyDefaults(t *testing.T) {
	got, err := ParseDowngradePolicy("")
	if err != nil || got != DowngradePolicyPeriodEnd {
		t.Fatalf("empty policy should default to period_end, got %q %v", got, err)
	}
	if _, err := ParseDowngradePolicy("later"); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
}

func TestSubscriptionStatusGrantsEntitlements(t *testing.T) {
	if !SubscriptionStatusActive.GrantsEntitlements() {
		t.Fatal("active should grant entitlements")
	}
	for _, status := range []SubscriptionStatus{SubscriptionStatusTrialing, SubscriptionStatusPastDue, SubscriptionStatusCanceled} {
		if status.GrantsEntitlements() {
			t.Fatalf("%s should not grant entitlements", status)
		}
	}
	if _, err := ParseSubscriptionStatus("paused"); err != nil {
		t.Fatalf("paused should parse: %v", err)
	}
}

func TestUsageActionAndPaymentStatus(t *testing.T) {
	if !UsageActionAnalyze.IsValid() || UsageAction("summarize").IsValid() {
		t.Fatal("unexpected usage action validity")
	}
	if _, err := ParsePaymentStatus("succeeded"); err != nil {
		t.Fatalf("succeeded should parse: %v", err)
	}
}

func TestSubscriptionStatusEndedAndParsing(t *testing.T) {
	for _, status := range []SubscriptionStatus{SubscriptionStatusCanceled, SubscriptionStatusIncompleteExpired} {
		if !status.Ended() {
			t.Fatalf("%s should be ended", status)
		}
	}
	if SubscriptionStatusPastDue.Ended() || SubscriptionStatusActive.Ended() {
		t.Fatal("recoverable states must not be ended")
	}
	got, err := ParseSubscriptionStatus(" Past_Due ")
	if err != nil || got != SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %q (%v)", got, err)
	}
	if _, err := ParseSubscriptionStatus("expired"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestPlanAndCycleStoreEmptyAsNull(t *testing.T) {
	if v, err := PlanTier("").Value(); err != nil || v != nil {
		t.Fatalf("empty tier should store NULL, got %v %v", v, err)
	}
	if v, err := PlanTierPro.Value(); err != nil || v != "pro" {
		t.Fatalf("unexpected tier value %v %v", v, err)
	}
	if v, err := BillingCycle("").Value(); err != nil || v != nil {
		t.Fatalf("empty cycle should store NULL, got %v %v", v, err)
	}

	tier := PlanTierTeam
	if err := tier.Scan(nil); err != nil || tier != "" {
		t.Fatalf("NULL should scan as empty tier, got %q %v", tier, err)
	}
	if err := tier.Scan([]byte("starter")); err != nil || tier != PlanTierStarter {
		t.Fatalf("unexpected scanned tier %q %v", tier, err)
	}
	var cycle BillingCycle
	if err := cycle.Scan("yearly"); err != nil || cycle != BillingCycleYearly {
		t.Fatalf("unexpected scanned cycle %q %v", cycle, err)
	}
	if err := cycle.Scan(42); err == nil {
		t.Fatal("expected error for unsupported source")
	}
}

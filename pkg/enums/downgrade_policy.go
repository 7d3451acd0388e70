package enums

import (
	"fmt"
	"strings"
)

// DowngradePolicy controls what happens to a user's plan when the
// subscription backing it is deleted.
type DowngradePolicy string

const (
	// DowngradePolicyPeriodEnd keeps the paid plan until the paid period ends.
	DowngradePolicyPeriodEnd DowngradePolicy = "period_end"
	// DowngradePolicyImmediate reverts to free as soon as the deletion is seen.
	DowngradePolicyImmediate DowngradePolicy = "immediate"
	// DowngradePolicyNone leaves the plan untouched.
	DowngradePolicyNone DowngradePolicy = "none"
)

var validDowngradePolicies = []DowngradePolicy{
	DowngradePolicyPeriodEnd,
	DowngradePolicyImmediate,
	DowngradePolicyNone,
}

// String implements fmt.Stringer.
func (d DowngradePolicy) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DowngradePolicy.
func (d DowngradePolicy) IsValid() bool {
	for _, candidate := range validDowngradePolicies {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDowngradePolicy converts raw input into a DowngradePolicy; empty input
// selects period_end.
func ParseDowngradePolicy(value string) (DowngradePolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return DowngradePolicyPeriodEnd, nil
	}
	for _, candidate := range validDowngradePolicies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid downgrade policy %q", value)
}

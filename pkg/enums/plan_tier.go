package enums

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// PlanTier identifies a subscription level in the plan catalog.
type PlanTier string

const (
	PlanTierFree    PlanTier = "free"
	PlanTierStarter PlanTier = "starter"
	PlanTierPro     PlanTier = "pro"
	PlanTierTeam    PlanTier = "team"
)

var validPlanTiers = []PlanTier{
	PlanTierFree,
	PlanTierStarter,
	PlanTierPro,
	PlanTierTeam,
}

// PlanTiers returns the known tiers in ascending order.
func PlanTiers() []PlanTier {
	out := make([]PlanTier, len(validPlanTiers))
	copy(out, validPlanTiers)
	return out
}

// String implements fmt.Stringer.
func (p PlanTier) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanTier.
func (p PlanTier) IsValid() bool {
	for _, candidate := range validPlanTiers {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanTier converts raw input into a PlanTier. Matching is case-insensitive.
func ParsePlanTier(value string) (PlanTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlanTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan tier %q", value)
}

// Value stores the empty tier as NULL.
func (p PlanTier) Value() (driver.Value, error) {
	if p == "" {
		return nil, nil
	}
	return string(p), nil
}

// Scan reads NULL back as the empty tier.
func (p *PlanTier) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = ""
	case string:
		*p = PlanTier(v)
	case []byte:
		*p = PlanTier(v)
	default:
		return fmt.Errorf("cannot scan %T into PlanTier", src)
	}
	return nil
}

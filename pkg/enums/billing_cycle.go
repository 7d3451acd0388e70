package enums

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// BillingCycle defines the cadence a price is charged on.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

var validBillingCycles = []BillingCycle{
	BillingCycleMonthly,
	BillingCycleYearly,
}

// String implements fmt.Stringer.
func (b BillingCycle) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingCycle.
func (b BillingCycle) IsValid() bool {
	for _, candidate := range validBillingCycles {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBillingCycle converts raw input into a BillingCycle. "annual" and
// "year" are accepted as aliases of yearly, "month" of monthly.
func ParseBillingCycle(value string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "monthly", "month":
		return BillingCycleMonthly, nil
	case "yearly", "year", "annual":
		return BillingCycleYearly, nil
	}
	return "", fmt.Errorf("invalid billing cycle %q", value)
}

// Value stores the empty cycle as NULL.
func (b BillingCycle) Value() (driver.Value, error) {
	if b == "" {
		return nil, nil
	}
	return string(b), nil
}

// Scan reads NULL back as the empty cycle.
func (b *BillingCycle) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = ""
	case string:
		*b = BillingCycle(v)
	case []byte:
		*b = BillingCycle(v)
	default:
		return fmt.Errorf("cannot scan %T into BillingCycle", src)
	}
	return nil
}

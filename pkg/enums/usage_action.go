package enums

import "fmt"

// UsageAction names a metered operation recorded on the usage log.
type UsageAction string

const (
	UsageActionOptimize UsageAction = "optimize"
	UsageActionAnalyze  UsageAction = "analyze"
)

var validUsageActions = []UsageAction{
	UsageActionOptimize,
	UsageActionAnalyze,
}

// String implements fmt.Stringer.
func (a UsageAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known UsageAction.
func (a UsageAction) IsValid() bool {
	for _, candidate := range validUsageActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseUsageAction converts raw input into a UsageAction.
func ParseUsageAction(value string) (UsageAction, error) {
	for _, candidate := range validUsageActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage action %q", value)
}

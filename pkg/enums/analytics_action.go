package enums

import "fmt"

// AnalyticsAction identifies the kind of activity recorded against a user
// or product analytics row.
type AnalyticsAction string

const (
	AnalyticsActionPurchase AnalyticsAction = "purchase"
	AnalyticsActionView     AnalyticsAction = "view"
	AnalyticsActionCartAdd  AnalyticsAction = "cart_add"
)

var validAnalyticsActions = []AnalyticsAction{
	AnalyticsActionPurchase,
	AnalyticsActionView,
	AnalyticsActionCartAdd,
}

// String implements fmt.Stringer.
func (a AnalyticsAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AnalyticsAction.
func (a AnalyticsAction) IsValid() bool {
	for _, candidate := range validAnalyticsActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAnalyticsAction converts raw input into an AnalyticsAction.
func ParseAnalyticsAction(value string) (AnalyticsAction, error) {
	for _, candidate := range validAnalyticsActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid analytics action %q", value)
}

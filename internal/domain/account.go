package domain

import "strings"

// Plan enumerates subscription tiers.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// ParsePlan normalizes a stored plan name. Unknown values fall back to free.
func ParsePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanStarter:
		return PlanStarter
	case PlanPro:
		return PlanPro
	case PlanBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}

// Account identifies the authenticated caller.
type Account struct {
	UserID string
	Email  string
}

// Profile is the stored credit state of an account.
type Profile struct {
	UserID  string
	Email   string
	Plan    Plan
	Credits int
}

// Package plan holds the immutable plan catalog: included allowances and
// metered overage pricing per subscription tier.
package plan

import (
	"errors"
	"strings"
)

// ID is the canonical plan identifier shared by configuration lookup and
// billing code.
type ID string

const (
	Starter   ID = "starter"
	Standard  ID = "standard"
	Unlimited ID = "unlimited"
)

var ErrUnknownPlan = errors.New("unknown_plan")

// ParseID normalizes a raw plan name to its canonical identifier.
func ParseID(raw string) (ID, error) {
	switch ID(strings.ToLower(strings.TrimSpace(raw))) {
	case Starter:
		return Starter, nil
	case Standard:
		return Standard, nil
	case Unlimited:
		return Unlimited, nil
	default:
		return "", ErrUnknownPlan
	}
}

// Plan describes what a tier includes and how overage is billed.
// A nil included value means the plan does not meter that usage kind at all;
// an empty MeteredPriceID means there is nothing to report overage against.
type Plan struct {
	ID                    ID     `mapstructure:"id"`
	IncludedCalls         *int64 `mapstructure:"included_calls"`
	IncludedMinutes       *int64 `mapstructure:"included_minutes"`
	PerCallOverageCents   *int64 `mapstructure:"per_call_overage_cents"`
	PerMinuteOverageCents *int64 `mapstructure:"per_minute_overage_cents"`
	MeteredPriceID        string `mapstructure:"metered_price_id"`
}

// Metered reports whether the plan has any overage model. Top-tier plans
// with no included limits never trigger overage reporting.
func (p Plan) Metered() bool {
	return p.IncludedCalls != nil || p.IncludedMinutes != nil
}

func int64Ptr(v int64) *int64 { return &v }

// DefaultCatalog is the built-in catalog used when no plans.yml override is
// mounted.
func DefaultCatalog() []Plan {
	return []Plan{
		{
			ID:                  Starter,
			IncludedCalls:       int64Ptr(200),
			PerCallOverageCents: int64Ptr(25),
			MeteredPriceID:      "price_starter_call_overage",
		},
		{
			ID:                    Standard,
			IncludedMinutes:       int64Ptr(1000),
			PerMinuteOverageCents: int64Ptr(15),
			MeteredPriceID:        "price_standard_minute_overage",
		},
		{
			ID: Unlimited,
		},
	}
}

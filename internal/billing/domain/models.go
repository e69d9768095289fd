// Package domain contains persistence models for billing accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dineline/dineline/internal/plan"
)

// BillingAccount ties a restaurant to its plan, external subscription and
// running monthly usage counters. The counters are monotonically
// non-decreasing within a period and are reset exactly once per
// billing-period-start event; only the usage ledger mutates them.
type BillingAccount struct {
	ID                       snowflake.ID `gorm:"primaryKey"`
	RestaurantID             snowflake.ID `gorm:"not null;uniqueIndex"`
	PlanID                   plan.ID      `gorm:"type:text;not null"`
	StripeCustomerID         *string      `gorm:"type:text"`
	StripeSubscriptionItemID *string      `gorm:"type:text"`
	MonthlyCallsUsed         int64        `gorm:"not null;default:0"`
	MonthlyMinutesUsed       int64        `gorm:"not null;default:0"`
	PeriodStart              time.Time    `gorm:"not null"`
	PeriodEnd                time.Time    `gorm:"not null"`
	CreatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingAccount) TableName() string { return "billing_accounts" }

// Subscribed reports whether the account has an external metered
// subscription to charge against.
func (a BillingAccount) Subscribed() bool {
	return a.StripeSubscriptionItemID != nil && *a.StripeSubscriptionItemID != ""
}

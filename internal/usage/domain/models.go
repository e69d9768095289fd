// Package domain contains persistence models for the billable usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind discriminates billable usage: whole calls and blocks of minutes.
type Kind string

const (
	KindCall   Kind = "call"
	KindMinute Kind = "minute"
)

// LedgerEntry is one append-only record of billable usage. Once Reported is
// true the entry is immutable from the reconciler's perspective and is never
// re-submitted to the billing provider.
type LedgerEntry struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	AccountID        snowflake.ID `gorm:"not null;index:idx_usage_ledger_account_kind"`
	RestaurantID     snowflake.ID `gorm:"not null;index"`
	Kind             Kind         `gorm:"type:text;not null;index:idx_usage_ledger_account_kind"`
	Quantity         int64        `gorm:"not null"`
	Reported         bool         `gorm:"not null;default:false"`
	ExternalReportID *string      `gorm:"type:text"`
	PeriodStart      time.Time    `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "usage_ledger_entries" }

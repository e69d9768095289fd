// Package domain contains persistence models for phone call records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CallStatus represents lifecycle states for a phone call.
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// CallRecord stores one row per phone call. Records are never deleted;
// they are the call history surface and the anchor for usage billing.
type CallRecord struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	RestaurantID      snowflake.ID      `gorm:"not null;index"`
	ExternalSessionID *string           `gorm:"type:text;uniqueIndex"`
	CallerNumber      string            `gorm:"type:text"`
	Status            CallStatus        `gorm:"type:text;not null"`
	DurationSeconds   *int              `gorm:""`
	UsageClaimedAt    *time.Time        `gorm:""`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CallRecord) TableName() string { return "call_records" }

// ClaimState makes the nullable usage_claimed_at column explicit as a tagged
// state: a record is either Unclaimed or Claimed at a known instant. The
// column transitions null -> non-null exactly once; only a failed local
// ledger write may move it back (see billing reconciler).
type ClaimState struct {
	at *time.Time
}

func Unclaimed() ClaimState { return ClaimState{} }

func ClaimedAt(t time.Time) ClaimState {
	u := t.UTC()
	return ClaimState{at: &u}
}

func (s ClaimState) Claimed() bool { return s.at != nil }

func (s ClaimState) At() (time.Time, bool) {
	if s.at == nil {
		return time.Time{}, false
	}
	return *s.at, true
}

// Claim reports the record's usage claim state.
func (r CallRecord) Claim() ClaimState {
	if r.UsageClaimedAt == nil {
		return Unclaimed()
	}
	return ClaimedAt(*r.UsageClaimedAt)
}

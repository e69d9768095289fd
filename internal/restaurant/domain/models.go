// Package domain contains persistence models for restaurant operational
// state: quoted wait times and temporary menu overrides.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Restaurant struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	Name                   string       `gorm:"type:text;not null"`
	PhoneNumber            string       `gorm:"type:text"`
	WaitTimeMinutes        int          `gorm:"not null;default:0"`
	DefaultWaitTimeMinutes int          `gorm:"not null;default:0"`
	ResetWaitTimeAt        *time.Time   `gorm:""`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Restaurant) TableName() string { return "restaurants" }

// OverrideStatus is the lifecycle of a menu override. Expired overrides are
// marked deleted rather than removed, keeping the row as an audit trail.
type OverrideStatus string

const (
	OverrideStatusActive  OverrideStatus = "active"
	OverrideStatusDeleted OverrideStatus = "deleted"
)

// MenuOverride marks a menu item temporarily unavailable, optionally until
// a scheduled reset instant.
type MenuOverride struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	RestaurantID snowflake.ID   `gorm:"not null;index"`
	ItemName     string         `gorm:"type:text;not null"`
	Reason       string         `gorm:"type:text"`
	Status       OverrideStatus `gorm:"type:text;not null;default:active"`
	ResetAt      *time.Time     `gorm:""`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MenuOverride) TableName() string { return "menu_overrides" }

// ResetState makes the nullable reset columns explicit as a tagged state:
// either no reset is scheduled, or one is scheduled at a known instant.
type ResetState struct {
	at *time.Time
}

func NoReset() ResetState { return ResetState{} }

func ScheduledReset(t time.Time) ResetState {
	u := t.UTC()
	return ResetState{at: &u}
}

func (s ResetState) Scheduled() bool { return s.at != nil }

func (s ResetState) At() (time.Time, bool) {
	if s.at == nil {
		return time.Time{}, false
	}
	return *s.at, true
}

// Due reports whether a scheduled reset has passed.
func (s ResetState) Due(now time.Time) bool {
	return s.at != nil && !now.Before(*s.at)
}

// WaitTimeReset reports the restaurant's scheduled wait time reset.
func (r Restaurant) WaitTimeReset() ResetState {
	if r.ResetWaitTimeAt == nil {
		return NoReset()
	}
	return ScheduledReset(*r.ResetWaitTimeAt)
}

// Reset reports the override's scheduled expiry.
func (o MenuOverride) Reset() ResetState {
	if o.ResetAt == nil {
		return NoReset()
	}
	return ScheduledReset(*o.ResetAt)
}

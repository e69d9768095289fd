package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant_not_found")
	ErrOverrideNotFound   = errors.New("menu_override_not_found")
	ErrInvalidWaitTime    = errors.New("invalid_wait_time")
	ErrInvalidItemName    = errors.New("invalid_item_name")
)

// SetWaitTimeRequest sets a temporary quoted wait time, optionally reverting
// to the restaurant's default at ResetAt.
type SetWaitTimeRequest struct {
	Minutes int
	ResetAt *time.Time
}

// CreateOverrideRequest marks a menu item unavailable, optionally until
// ResetAt.
type CreateOverrideRequest struct {
	RestaurantID snowflake.ID
	ItemName     string
	Reason       string
	ResetAt      *time.Time
}

// Repository persists restaurant state. The ResetWaitTime and ExpireOverride
// writes are conditional on the reset timestamp the sweeper read, so a
// concurrent operator edit that rescheduled the reset is never clobbered.
type Repository interface {
	GetRestaurant(ctx context.Context, id snowflake.ID) (*Restaurant, error)
	SetWaitTime(ctx context.Context, id snowflake.ID, req SetWaitTimeRequest) error
	ClearWaitTime(ctx context.Context, id snowflake.ID) error
	GetRestaurantsDueForWaitReset(ctx context.Context, now time.Time, limit int) ([]Restaurant, error)
	ResetWaitTime(ctx context.Context, id snowflake.ID, scheduledAt time.Time) (bool, error)

	CreateOverride(ctx context.Context, override *MenuOverride) error
	GetOverride(ctx context.Context, id snowflake.ID) (*MenuOverride, error)
	ListActiveOverrides(ctx context.Context, restaurantID snowflake.ID) ([]MenuOverride, error)
	DeleteOverride(ctx context.Context, id snowflake.ID) error
	GetOverridesDueForReset(ctx context.Context, now time.Time, limit int) ([]MenuOverride, error)
	ExpireOverride(ctx context.Context, id snowflake.ID, scheduledAt time.Time) (bool, error)
}

type Service interface {
	GetRestaurant(ctx context.Context, id snowflake.ID) (*Restaurant, error)
	SetWaitTime(ctx context.Context, id snowflake.ID, req SetWaitTimeRequest) (*Restaurant, error)
	ClearWaitTime(ctx context.Context, id snowflake.ID) (*Restaurant, error)
	CreateMenuOverride(ctx context.Context, req CreateOverrideRequest) (*MenuOverride, error)
	DeleteMenuOverride(ctx context.Context, id snowflake.ID) error
	ListActiveOverrides(ctx context.Context, restaurantID snowflake.ID) ([]MenuOverride, error)
}

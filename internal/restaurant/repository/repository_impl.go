package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dineline/dineline/internal/clock"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	"gorm.io/gorm"
)

type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) restaurantdomain.Repository {
	return &Repository{db: db, clock: clk}
}

func (r *Repository) GetRestaurant(ctx context.Context, id snowflake.ID) (*restaurantdomain.Restaurant, error) {
	var restaurant restaurantdomain.Restaurant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&restaurant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, restaurantdomain.ErrRestaurantNotFound
		}
		return nil, err
	}
	return &restaurant, nil
}

func (r *Repository) SetWaitTime(ctx context.Context, id snowflake.ID, req restaurantdomain.SetWaitTimeRequest) error {
	result := r.db.WithContext(ctx).
		Model(&restaurantdomain.Restaurant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"wait_time_minutes":  req.Minutes,
			"reset_wait_time_at": req.ResetAt,
			"updated_at":         r.clock.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return restaurantdomain.ErrRestaurantNotFound
	}
	return nil
}

func (r *Repository) ClearWaitTime(ctx context.Context, id snowflake.ID) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE restaurants
		 SET wait_time_minutes = default_wait_time_minutes,
		     reset_wait_time_at = NULL,
		     updated_at = ?
		 WHERE id = ?`,
		r.clock.Now(),
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return restaurantdomain.ErrRestaurantNotFound
	}
	return nil
}

func (r *Repository) GetRestaurantsDueForWaitReset(ctx context.Context, now time.Time, limit int) ([]restaurantdomain.Restaurant, error) {
	if limit <= 0 {
		limit = 100
	}
	var restaurants []restaurantdomain.Restaurant
	err := r.db.WithContext(ctx).
		Where("reset_wait_time_at IS NOT NULL AND reset_wait_time_at <= ?", now).
		Order("reset_wait_time_at ASC").
		Limit(limit).
		Find(&restaurants).Error
	if err != nil {
		return nil, err
	}
	return restaurants, nil
}

// ResetWaitTime reverts the quoted wait time to the restaurant's default,
// conditional on the reset still being scheduled at the instant the caller
// read. An operator edit in between changes reset_wait_time_at and makes
// this a no-op.
func (r *Repository) ResetWaitTime(ctx context.Context, id snowflake.ID, scheduledAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE restaurants
		 SET wait_time_minutes = default_wait_time_minutes,
		     reset_wait_time_at = NULL,
		     updated_at = ?
		 WHERE id = ? AND reset_wait_time_at = ?`,
		r.clock.Now(),
		id,
		scheduledAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) CreateOverride(ctx context.Context, override *restaurantdomain.MenuOverride) error {
	now := r.clock.Now()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}
	override.UpdatedAt = now
	return r.db.WithContext(ctx).Create(override).Error
}

func (r *Repository) GetOverride(ctx context.Context, id snowflake.ID) (*restaurantdomain.MenuOverride, error) {
	var override restaurantdomain.MenuOverride
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, restaurantdomain.ErrOverrideNotFound
		}
		return nil, err
	}
	return &override, nil
}

func (r *Repository) ListActiveOverrides(ctx context.Context, restaurantID snowflake.ID) ([]restaurantdomain.MenuOverride, error) {
	var overrides []restaurantdomain.MenuOverride
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND status = ?", restaurantID, restaurantdomain.OverrideStatusActive).
		Order("created_at ASC").
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func (r *Repository) DeleteOverride(ctx context.Context, id snowflake.ID) error {
	result := r.db.WithContext(ctx).
		Model(&restaurantdomain.MenuOverride{}).
		Where("id = ? AND status = ?", id, restaurantdomain.OverrideStatusActive).
		Updates(map[string]any{
			"status":     restaurantdomain.OverrideStatusDeleted,
			"updated_at": r.clock.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return restaurantdomain.ErrOverrideNotFound
	}
	return nil
}

func (r *Repository) GetOverridesDueForReset(ctx context.Context, now time.Time, limit int) ([]restaurantdomain.MenuOverride, error) {
	if limit <= 0 {
		limit = 100
	}
	var overrides []restaurantdomain.MenuOverride
	err := r.db.WithContext(ctx).
		Where("status = ? AND reset_at IS NOT NULL AND reset_at <= ?", restaurantdomain.OverrideStatusActive, now).
		Order("reset_at ASC").
		Limit(limit).
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

// ExpireOverride retires an override whose scheduled reset has passed. The
// status and reset_at conditions skip rows an operator deleted or
// rescheduled after the sweep pass read them.
func (r *Repository) ExpireOverride(ctx context.Context, id snowflake.ID, scheduledAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE menu_overrides
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND reset_at = ?`,
		restaurantdomain.OverrideStatusDeleted,
		r.clock.Now(),
		id,
		restaurantdomain.OverrideStatusActive,
		scheduledAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

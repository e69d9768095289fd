package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/dineline/dineline/internal/clock"
	"gorm.io/gorm"
)

type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) calldomain.Repository {
	return &Repository{db: db, clock: clk}
}

func (r *Repository) Create(ctx context.Context, record *calldomain.CallRecord) error {
	now := r.clock.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *Repository) GetCall(ctx context.Context, id snowflake.ID) (*calldomain.CallRecord, error) {
	var record calldomain.CallRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, calldomain.ErrCallNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) GetByExternalSession(ctx context.Context, sessionID string) (*calldomain.CallRecord, error) {
	if sessionID == "" {
		return nil, calldomain.ErrInvalidSessionID
	}
	var record calldomain.CallRecord
	err := r.db.WithContext(ctx).Where("external_session_id = ?", sessionID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, calldomain.ErrCallNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) GetCallsWithStatusOlderThan(ctx context.Context, status calldomain.CallStatus, minAge time.Duration, limit int) ([]calldomain.CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.clock.Now().Add(-minAge)
	var records []calldomain.CallRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", status, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetUnclaimedCompleted returns completed calls whose usage has not been
// claimed yet. The poller uses it to re-drive billing for calls whose
// completion webhook was missed or whose reconciliation was rolled back.
func (r *Repository) GetUnclaimedCompleted(ctx context.Context, minAge time.Duration, limit int) ([]calldomain.CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.clock.Now().Add(-minAge)
	var records []calldomain.CallRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND usage_claimed_at IS NULL AND updated_at <= ?", calldomain.CallStatusCompleted, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) UpdateCall(ctx context.Context, id snowflake.ID, req calldomain.UpdateCallRequest) error {
	updates := map[string]any{
		"updated_at": r.clock.Now(),
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.DurationSeconds != nil {
		updates["duration_seconds"] = *req.DurationSeconds
	}
	if req.ExternalSessionID != nil {
		updates["external_session_id"] = *req.ExternalSessionID
	}
	result := r.db.WithContext(ctx).
		Model(&calldomain.CallRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return calldomain.ErrCallNotFound
	}
	return nil
}

// ClaimUsage atomically moves usage_claimed_at from null to now. The status
// guard keeps a late-arriving claim from billing a call that never completed.
// Under concurrent invocations exactly one caller observes true; losing is
// expected and not an error.
func (r *Repository) ClaimUsage(ctx context.Context, id snowflake.ID) (bool, error) {
	now := r.clock.Now()
	result := r.db.WithContext(ctx).Exec(
		`UPDATE call_records
		 SET usage_claimed_at = ?, updated_at = ?
		 WHERE id = ?
		   AND usage_claimed_at IS NULL
		   AND status = ?`,
		now,
		now,
		id,
		calldomain.CallStatusCompleted,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseUsageClaim reopens the claim race. Only the reconciler may call it,
// and only before anything was durably written or sent downstream.
func (r *Repository) ReleaseUsageClaim(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE call_records
		 SET usage_claimed_at = NULL, updated_at = ?
		 WHERE id = ?`,
		r.clock.Now(),
		id,
	).Error
}

func (r *Repository) List(ctx context.Context, restaurantID snowflake.ID, limit int) ([]calldomain.CallRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []calldomain.CallRecord
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

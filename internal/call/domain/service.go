package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrCallNotFound     = errors.New("call_not_found")
	ErrInvalidStatus    = errors.New("invalid_call_status")
	ErrInvalidSessionID = errors.New("invalid_session_id")
)

// UpdateCallRequest carries the mutable call record fields. Nil fields are
// left untouched.
type UpdateCallRequest struct {
	Status            *CallStatus
	DurationSeconds   *int
	ExternalSessionID *string
}

// Repository is the call record store. ClaimUsage is the atomic idempotency
// gate for billing: it moves usage_claimed_at from null to now in a single
// conditional write and reports whether this invocation won the transition.
type Repository interface {
	Create(ctx context.Context, record *CallRecord) error
	GetCall(ctx context.Context, id snowflake.ID) (*CallRecord, error)
	GetByExternalSession(ctx context.Context, sessionID string) (*CallRecord, error)
	GetCallsWithStatusOlderThan(ctx context.Context, status CallStatus, minAge time.Duration, limit int) ([]CallRecord, error)
	GetUnclaimedCompleted(ctx context.Context, minAge time.Duration, limit int) ([]CallRecord, error)
	UpdateCall(ctx context.Context, id snowflake.ID, req UpdateCallRequest) error
	ClaimUsage(ctx context.Context, id snowflake.ID) (bool, error)
	ReleaseUsageClaim(ctx context.Context, id snowflake.ID) error
	List(ctx context.Context, restaurantID snowflake.ID, limit int) ([]CallRecord, error)
}

// StatusCallbackRequest is the normalized form of a telephony status
// callback.
type StatusCallbackRequest struct {
	RestaurantID      snowflake.ID
	ExternalSessionID string
	CallerNumber      string
	Status            CallStatus
	DurationSeconds   *int
}

type Service interface {
	HandleStatusCallback(ctx context.Context, req StatusCallbackRequest) (*CallRecord, error)
	List(ctx context.Context, restaurantID snowflake.ID, limit int) ([]CallRecord, error)
}

// ParseStatus maps a raw callback status to the canonical call status.
func ParseStatus(raw string) (CallStatus, error) {
	switch CallStatus(raw) {
	case CallStatusInProgress, CallStatusCompleted, CallStatusFailed:
		return CallStatus(raw), nil
	}
	// Telephony providers report a wider vocabulary than we persist.
	switch raw {
	case "ringing", "queued", "initiated", "answered":
		return CallStatusInProgress, nil
	case "busy", "no-answer", "canceled":
		return CallStatusFailed, nil
	default:
		return "", ErrInvalidStatus
	}
}

package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/dineline/dineline/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Repo    calldomain.Repository
	Billing billingdomain.Service
	GenID   *snowflake.Node
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	repo    calldomain.Repository
	billing billingdomain.Service
	genID   *snowflake.Node
}

func NewService(p ServiceParam) calldomain.Service {
	return &Service{
		log:     p.Log.Named("call.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		billing: p.Billing,
		genID:   p.GenID,
	}
}

// HandleStatusCallback upserts the call record for a telephony status
// callback, keyed by the provider's session identifier, and kicks off
// billing reconciliation when the call has completed.
//
// Reconciliation failures are logged, not returned: the callback was
// absorbed and the sweeper retries any call still unclaimed.
func (s *Service) HandleStatusCallback(ctx context.Context, req calldomain.StatusCallbackRequest) (*calldomain.CallRecord, error) {
	if req.ExternalSessionID == "" {
		return nil, calldomain.ErrInvalidSessionID
	}

	record, err := s.repo.GetByExternalSession(ctx, req.ExternalSessionID)
	switch {
	case errors.Is(err, calldomain.ErrCallNotFound):
		record = &calldomain.CallRecord{
			ID:                s.genID.Generate(),
			RestaurantID:      req.RestaurantID,
			ExternalSessionID: &req.ExternalSessionID,
			CallerNumber:      req.CallerNumber,
			Status:            req.Status,
			DurationSeconds:   req.DurationSeconds,
			CreatedAt:         s.clock.Now(),
			UpdatedAt:         s.clock.Now(),
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		update := calldomain.UpdateCallRequest{Status: &req.Status}
		if req.DurationSeconds != nil {
			update.DurationSeconds = req.DurationSeconds
		}
		if err := s.repo.UpdateCall(ctx, record.ID, update); err != nil {
			return nil, err
		}
		record, err = s.repo.GetCall(ctx, record.ID)
		if err != nil {
			return nil, err
		}
	}

	if record.Status == calldomain.CallStatusCompleted {
		if err := s.billing.ReconcileCall(ctx, record.ID); err != nil {
			s.log.Error("billing reconciliation failed",
				zap.String("call_id", record.ID.String()),
				zap.Error(err),
			)
		}
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, restaurantID snowflake.ID, limit int) ([]calldomain.CallRecord, error) {
	return s.repo.List(ctx, restaurantID, limit)
}

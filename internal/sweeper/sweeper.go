// Package sweeper runs the periodic background passes: reverting expired
// wait times and menu overrides, and re-driving billing for calls the
// webhook path missed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/dineline/dineline/internal/clock"
	"github.com/dineline/dineline/internal/config"
	"github.com/dineline/dineline/internal/observability/metrics"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

const (
	jobWaitTimeReset     = "wait_time_reset"
	jobMenuOverrideReset = "menu_override_reset"
	jobCallReconcile     = "call_reconcile"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Restaurants restaurantdomain.Repository
	Calls       calldomain.Repository
	Billing     billingdomain.Service
}

type Sweeper struct {
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.SweeperConfig
	restaurants restaurantdomain.Repository
	calls       calldomain.Repository
	billing     billingdomain.Service
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Clock == nil || p.Restaurants == nil || p.Calls == nil || p.Billing == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.Sweeper
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		log:         p.Log.Named("sweeper"),
		clock:       p.Clock,
		cfg:         cfg,
		restaurants: p.Restaurants,
		calls:       p.Calls,
		billing:     p.Billing,
	}, nil
}

func (s *Sweeper) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	start := s.clock.Now()
	processed, err := fn(ctx)
	if err != nil {
		metrics.Sweeper().Errors.WithLabelValues(name).Inc()
		s.log.Warn("sweep pass failed",
			zap.String("job", name),
			zap.Int("processed", processed),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", name, err)
	}
	if processed > 0 {
		s.log.Info("sweep pass finished",
			zap.String("job", name),
			zap.Int("processed", processed),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}

func (s *Sweeper) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, jobWaitTimeReset, s.WaitTimeResetJob))
	err = errors.Join(err, s.runJob(parent, jobMenuOverrideReset, s.MenuOverrideResetJob))
	err = errors.Join(err, s.runJob(parent, jobCallReconcile, s.CallReconcileJob))
	return err
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweeper run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WaitTimeResetJob reverts quoted wait times whose scheduled reset has
// passed. The conditional write re-checks the reset instant read here, so
// an operator who moved the reset while the pass ran keeps their edit.
func (s *Sweeper) WaitTimeResetJob(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var jobErr error
	processed := 0

	for {
		if ctx.Err() != nil {
			return processed, errors.Join(jobErr, ctx.Err())
		}
		due, err := s.restaurants.GetRestaurantsDueForWaitReset(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return processed, errors.Join(jobErr, err)
		}
		if len(due) == 0 {
			return processed, jobErr
		}

		swept := 0
		for _, restaurant := range due {
			scheduledAt, ok := restaurant.WaitTimeReset().At()
			if !ok {
				continue
			}
			reset, err := s.restaurants.ResetWaitTime(ctx, restaurant.ID, scheduledAt)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				metrics.Sweeper().Errors.WithLabelValues(jobWaitTimeReset).Inc()
				continue
			}
			if !reset {
				metrics.Sweeper().Skips.WithLabelValues(jobWaitTimeReset).Inc()
				continue
			}
			metrics.Sweeper().Resets.WithLabelValues(jobWaitTimeReset).Inc()
			processed++
			swept++
		}
		// Every due row was either reset, skipped or errored; without
		// progress another fetch would loop on the same rows.
		if swept == 0 {
			return processed, jobErr
		}
	}
}

// MenuOverrideResetJob retires menu overrides whose scheduled reset has
// passed, marking them deleted rather than removing the rows.
func (s *Sweeper) MenuOverrideResetJob(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var jobErr error
	processed := 0

	for {
		if ctx.Err() != nil {
			return processed, errors.Join(jobErr, ctx.Err())
		}
		due, err := s.restaurants.GetOverridesDueForReset(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return processed, errors.Join(jobErr, err)
		}
		if len(due) == 0 {
			return processed, jobErr
		}

		swept := 0
		for _, override := range due {
			scheduledAt, ok := override.Reset().At()
			if !ok {
				continue
			}
			expired, err := s.restaurants.ExpireOverride(ctx, override.ID, scheduledAt)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				metrics.Sweeper().Errors.WithLabelValues(jobMenuOverrideReset).Inc()
				continue
			}
			if !expired {
				metrics.Sweeper().Skips.WithLabelValues(jobMenuOverrideReset).Inc()
				continue
			}
			metrics.Sweeper().Resets.WithLabelValues(jobMenuOverrideReset).Inc()
			processed++
			swept++
		}
		if swept == 0 {
			return processed, jobErr
		}
	}
}

// CallReconcileJob is the safety net behind the webhook path. It re-drives
// billing for completed calls still unclaimed after StaleCallMaxAge, and
// fails in-progress calls nothing has touched for AbandonedCallAge.
func (s *Sweeper) CallReconcileJob(ctx context.Context) (int, error) {
	var jobErr error
	processed := 0

	stale, err := s.calls.GetUnclaimedCompleted(ctx, s.cfg.StaleCallMaxAge, s.cfg.BatchSize)
	if err != nil {
		return processed, err
	}
	for _, record := range stale {
		if ctx.Err() != nil {
			return processed, errors.Join(jobErr, ctx.Err())
		}
		if err := s.billing.ReconcileCall(ctx, record.ID); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		processed++
	}

	abandoned, err := s.calls.GetCallsWithStatusOlderThan(ctx, calldomain.CallStatusInProgress, s.cfg.AbandonedCallAge, s.cfg.BatchSize)
	if err != nil {
		return processed, errors.Join(jobErr, err)
	}
	failed := calldomain.CallStatusFailed
	for _, record := range abandoned {
		if ctx.Err() != nil {
			return processed, errors.Join(jobErr, ctx.Err())
		}
		if err := s.calls.UpdateCall(ctx, record.ID, calldomain.UpdateCallRequest{Status: &failed}); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		s.log.Info("abandoned call marked failed",
			zap.String("call_id", record.ID.String()),
		)
		processed++
	}

	return processed, jobErr
}

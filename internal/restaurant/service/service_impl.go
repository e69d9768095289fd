package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dineline/dineline/internal/clock"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Repo  restaurantdomain.Repository
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	repo  restaurantdomain.Repository
	genID *snowflake.Node
}

func NewService(p ServiceParam) restaurantdomain.Service {
	return &Service{
		log:   p.Log.Named("restaurant.service"),
		clock: p.Clock,
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) GetRestaurant(ctx context.Context, id snowflake.ID) (*restaurantdomain.Restaurant, error) {
	return s.repo.GetRestaurant(ctx, id)
}

func (s *Service) SetWaitTime(ctx context.Context, id snowflake.ID, req restaurantdomain.SetWaitTimeRequest) (*restaurantdomain.Restaurant, error) {
	if req.Minutes < 0 {
		return nil, restaurantdomain.ErrInvalidWaitTime
	}
	if req.ResetAt != nil && req.ResetAt.Before(s.clock.Now()) {
		return nil, restaurantdomain.ErrInvalidWaitTime
	}
	if err := s.repo.SetWaitTime(ctx, id, req); err != nil {
		return nil, err
	}
	return s.repo.GetRestaurant(ctx, id)
}

func (s *Service) ClearWaitTime(ctx context.Context, id snowflake.ID) (*restaurantdomain.Restaurant, error) {
	if err := s.repo.ClearWaitTime(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetRestaurant(ctx, id)
}

func (s *Service) CreateMenuOverride(ctx context.Context, req restaurantdomain.CreateOverrideRequest) (*restaurantdomain.MenuOverride, error) {
	itemName := strings.TrimSpace(req.ItemName)
	if itemName == "" {
		return nil, restaurantdomain.ErrInvalidItemName
	}
	if _, err := s.repo.GetRestaurant(ctx, req.RestaurantID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	override := &restaurantdomain.MenuOverride{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		ItemName:     itemName,
		Reason:       req.Reason,
		Status:       restaurantdomain.OverrideStatusActive,
		ResetAt:      req.ResetAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateOverride(ctx, override); err != nil {
		return nil, err
	}
	s.log.Info("menu override created",
		zap.String("restaurant_id", req.RestaurantID.String()),
		zap.String("item", itemName),
	)
	return override, nil
}

func (s *Service) DeleteMenuOverride(ctx context.Context, id snowflake.ID) error {
	return s.repo.DeleteOverride(ctx, id)
}

func (s *Service) ListActiveOverrides(ctx context.Context, restaurantID snowflake.ID) ([]restaurantdomain.MenuOverride, error) {
	return s.repo.ListActiveOverrides(ctx, restaurantID)
}

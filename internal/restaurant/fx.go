package restaurant

import (
	"github.com/dineline/dineline/internal/restaurant/repository"
	"github.com/dineline/dineline/internal/restaurant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("restaurant",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)

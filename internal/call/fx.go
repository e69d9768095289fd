package call

import (
	"github.com/dineline/dineline/internal/call/repository"
	"github.com/dineline/dineline/internal/call/service"
	"go.uber.org/fx"
)

var Module = fx.Module("call",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)

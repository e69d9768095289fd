package billing

import (
	"github.com/dineline/dineline/internal/billing/provider"
	"github.com/dineline/dineline/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		provider.NewStripeReporter,
		service.NewService,
	),
)

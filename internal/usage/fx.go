package usage

import (
	"github.com/dineline/dineline/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.ledger",
	fx.Provide(service.NewLedger),
)

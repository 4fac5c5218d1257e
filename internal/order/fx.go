package order

import (
	"github.com/jarednorman/solidus-friendly-promotions/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order.repository",
	fx.Provide(repository.Provide),
)

package promotion

import (
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/repository"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promotion.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

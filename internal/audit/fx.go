package audit

import (
	"github.com/jarednorman/solidus-friendly-promotions/internal/audit/repository"
	"github.com/jarednorman/solidus-friendly-promotions/internal/audit/service"
	"go.uber.org/fx"
)

// Module records promotion lifecycle and checkout changes to audit_logs.
var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide, service.NewService),
)

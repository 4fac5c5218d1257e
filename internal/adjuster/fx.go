package adjuster

import "go.uber.org/fx"

var Module = fx.Module("adjuster.service",
	fx.Provide(New),
)

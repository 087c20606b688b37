package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vesta/internal/engine"
)

// Module provides the order repository to Fx as the engine's
// persistence port.
var Module = fx.Provide(
	fx.Annotate(NewRepository, fx.As(new(engine.Repository))),
)

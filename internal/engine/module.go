package engine

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vesta/internal/fulfillment"
	"github.com/Additional-Code/vesta/internal/ledger"
	"github.com/Additional-Code/vesta/internal/statemachine"
)

// Module provides the engine and its domain components to Fx.
var Module = fx.Provide(
	statemachine.New,
	ledger.New,
	fulfillment.New,
	New,
)

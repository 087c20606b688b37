// Package clock provides the injected time source. The engine never
// reads the wall clock directly so tests can pin timestamps.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Module provides the system clock to the Fx graph.
var Module = fx.Provide(func() Clock { return System() })

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock in UTC.
func System() Clock { return systemClock{} }

package seeder

import "go.uber.org/fx"

// Module provides the database seeder.
var Module = fx.Provide(New)

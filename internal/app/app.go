package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vesta/internal/cache"
	"github.com/Additional-Code/vesta/internal/clock"
	"github.com/Additional-Code/vesta/internal/config"
	"github.com/Additional-Code/vesta/internal/database"
	"github.com/Additional-Code/vesta/internal/engine"
	"github.com/Additional-Code/vesta/internal/gateway"
	"github.com/Additional-Code/vesta/internal/logger"
	"github.com/Additional-Code/vesta/internal/messaging"
	"github.com/Additional-Code/vesta/internal/observability"
	repositoryorder "github.com/Additional-Code/vesta/internal/repository/order"
	grpcserver "github.com/Additional-Code/vesta/internal/server/grpc"
	httpserver "github.com/Additional-Code/vesta/internal/server/http"
	"github.com/Additional-Code/vesta/internal/shipping"
	transporthttp "github.com/Additional-Code/vesta/internal/transport/http"
	"github.com/Additional-Code/vesta/internal/worker"
	workerorder "github.com/Additional-Code/vesta/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	clock.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	gateway.Module,
	shipping.Module,
	repositoryorder.Module,
	engine.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP

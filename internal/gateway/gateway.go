// Package gateway abstracts the payment processor. The wire protocol
// lives behind the PaymentGateway interface; the engine only cares
// about charge success or failure.
package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/config"
)

// PaymentGateway executes the actual movement of funds for a capture.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) error
}

// Module provides the configured gateway to the Fx graph.
var Module = fx.Provide(NewGateway)

// NewGateway selects a gateway driver from configuration.
func NewGateway(cfg config.Config, logger *zap.Logger) (PaymentGateway, error) {
	switch cfg.Gateway.Driver {
	case "sandbox":
		return &sandboxGateway{logger: logger}, nil
	case "noop":
		return noopGateway{}, nil
	default:
		return nil, fmt.Errorf("unsupported gateway driver: %s", cfg.Gateway.Driver)
	}
}

// sandboxGateway approves every charge and logs it. Useful for local
// development and demo environments.
type sandboxGateway struct {
	logger *zap.Logger
}

func (g *sandboxGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.logger.Info("sandbox charge approved",
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()),
		zap.String("currency", currency),
	)
	return nil
}

type noopGateway struct{}

func (noopGateway) Charge(context.Context, string, decimal.Decimal, string) error { return nil }

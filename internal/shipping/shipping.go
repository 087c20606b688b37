// Package shipping holds the address and carrier capabilities the
// engine consults. Rate computation is out of scope; these only answer
// "is this address resolvable" and "has this shipment settled".
package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/Additional-Code/vesta/internal/config"
	"github.com/Additional-Code/vesta/internal/entity"
)

// ErrUnresolvableAddress indicates the address cannot be shipped to.
var ErrUnresolvableAddress = errors.New("address is not resolvable")

// AddressValidator checks a shipping/billing address can be resolved.
type AddressValidator interface {
	Validate(ctx context.Context, addr *entity.Address) error
}

// CarrierTracker looks up shipment settlement with the carrier. A
// settled fulfillment can no longer be canceled.
type CarrierTracker interface {
	Settled(ctx context.Context, trackingNumber string) (bool, error)
}

// Module provides the shipping capabilities to the Fx graph.
var Module = fx.Provide(NewAddressValidator, NewCarrierTracker)

// NewAddressValidator selects an address validator driver.
func NewAddressValidator(cfg config.Config) (AddressValidator, error) {
	switch cfg.Carrier.AddressDriver {
	case "basic":
		return basicValidator{}, nil
	default:
		return nil, fmt.Errorf("unsupported address validator driver: %s", cfg.Carrier.AddressDriver)
	}
}

// NewCarrierTracker selects a carrier tracker driver.
func NewCarrierTracker(cfg config.Config) (CarrierTracker, error) {
	switch cfg.Carrier.TrackerDriver {
	case "static":
		return staticTracker{}, nil
	default:
		return nil, fmt.Errorf("unsupported carrier tracker driver: %s", cfg.Carrier.TrackerDriver)
	}
}

// basicValidator accepts any address with a street, city, and country.
type basicValidator struct{}

func (basicValidator) Validate(ctx context.Context, addr *entity.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if addr == nil {
		return ErrUnresolvableAddress
	}
	if strings.TrimSpace(addr.StreetLine) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.CountryCode) == "" {
		return ErrUnresolvableAddress
	}
	return nil
}

// staticTracker never reports settlement; fulfillments stay cancelable
// until a real carrier integration replaces it.
type staticTracker struct{}

func (staticTracker) Settled(context.Context, string) (bool, error) { return false, nil }

// Package fulfillment manages partial and full shipment of order
// lines. Allocation is all-or-nothing: every requested line is
// validated before any fulfilled quantity changes.
package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Additional-Code/vesta/internal/clock"
	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/shipping"
)

// LineQuantity requests shipment of a quantity from one order line.
type LineQuantity struct {
	LineID   string
	Quantity int
}

// OverfulfillmentError lists every line whose request exceeds its
// remaining quantity.
type OverfulfillmentError struct {
	OrderID string
	Lines   []OffendingLine
}

// OffendingLine describes one over-allocated line.
type OffendingLine struct {
	LineID    string
	Requested int
	Remaining int
}

func (e *OverfulfillmentError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s (requested %d, remaining %d)", l.LineID, l.Requested, l.Remaining))
	}
	return fmt.Sprintf("order %s: fulfillment over-allocates lines: %s", e.OrderID, strings.Join(parts, ", "))
}

// InvalidQuantityError reports a non-positive or unknown-line request.
type InvalidQuantityError struct {
	OrderID string
	LineID  string
	Reason  string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("order %s line %s: %s", e.OrderID, e.LineID, e.Reason)
}

// AlreadyCanceledError reports a second cancel of the same fulfillment.
type AlreadyCanceledError struct {
	FulfillmentID string
}

func (e *AlreadyCanceledError) Error() string {
	return fmt.Sprintf("fulfillment %s is already canceled", e.FulfillmentID)
}

// SettledError reports a cancel attempt on a carrier-settled shipment.
type SettledError struct {
	FulfillmentID  string
	TrackingNumber string
}

func (e *SettledError) Error() string {
	return fmt.Sprintf("fulfillment %s has settled with the carrier (%s) and cannot be canceled", e.FulfillmentID, e.TrackingNumber)
}

// Tracker creates and cancels fulfillments against order aggregates.
type Tracker struct {
	carrier shipping.CarrierTracker
	clock   clock.Clock
}

// New constructs a Tracker.
func New(carrier shipping.CarrierTracker, clk clock.Clock) *Tracker {
	return &Tracker{carrier: carrier, clock: clk}
}

// Create validates the requested allocation across all lines, then
// appends a fulfillment and bumps each line's fulfilled quantity. On
// any validation failure no line is touched.
func (t *Tracker) Create(o *entity.Order, items []LineQuantity, trackingNumber string) (*entity.Fulfillment, error) {
	if len(items) == 0 {
		return nil, &InvalidQuantityError{OrderID: o.ID, Reason: "no lines requested"}
	}

	requested := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{OrderID: o.ID, LineID: item.LineID, Reason: fmt.Sprintf("quantity must be positive, got %d", item.Quantity)}
		}
		if _, ok := o.Line(item.LineID); !ok {
			return nil, &InvalidQuantityError{OrderID: o.ID, LineID: item.LineID, Reason: "unknown order line"}
		}
		requested[item.LineID] += item.Quantity
	}

	var offending []OffendingLine
	for _, item := range items {
		line, _ := o.Line(item.LineID)
		remaining := line.QuantityOrdered - line.QuantityFulfilled
		if qty := requested[item.LineID]; qty > remaining {
			offending = append(offending, OffendingLine{LineID: item.LineID, Requested: qty, Remaining: remaining})
			delete(requested, item.LineID)
		}
	}
	if len(offending) > 0 {
		return nil, &OverfulfillmentError{OrderID: o.ID, Lines: offending}
	}

	f := &entity.Fulfillment{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		Status:         entity.FulfillmentCreated,
		TrackingNumber: trackingNumber,
		CreatedAt:      t.clock.Now(),
	}
	for _, item := range items {
		line, _ := o.Line(item.LineID)
		line.QuantityFulfilled += item.Quantity
		f.Lines = append(f.Lines, &entity.FulfillmentLine{
			ID:            uuid.NewString(),
			FulfillmentID: f.ID,
			OrderLineID:   item.LineID,
			Quantity:      item.Quantity,
		})
	}
	o.Fulfillments = append(o.Fulfillments, f)
	return f, nil
}

// Cancel reverses a fulfillment's allocations unless the shipment has
// already settled with the carrier.
func (t *Tracker) Cancel(ctx context.Context, o *entity.Order, fulfillmentID string) (*entity.Fulfillment, error) {
	f, ok := o.Fulfillment(fulfillmentID)
	if !ok {
		return nil, &InvalidQuantityError{OrderID: o.ID, Reason: fmt.Sprintf("unknown fulfillment %s", fulfillmentID)}
	}
	if f.Status == entity.FulfillmentCanceled {
		return nil, &AlreadyCanceledError{FulfillmentID: f.ID}
	}
	if f.TrackingNumber != "" {
		settled, err := t.carrier.Settled(ctx, f.TrackingNumber)
		if err != nil {
			return nil, fmt.Errorf("carrier lookup for %s: %w", f.TrackingNumber, err)
		}
		if settled {
			return nil, &SettledError{FulfillmentID: f.ID, TrackingNumber: f.TrackingNumber}
		}
	}

	for _, fl := range f.Lines {
		if line, ok := o.Line(fl.OrderLineID); ok {
			line.QuantityFulfilled -= fl.Quantity
			if line.QuantityFulfilled < 0 {
				line.QuantityFulfilled = 0
			}
		}
	}
	f.Status = entity.FulfillmentCanceled
	return f, nil
}

// UpdateTracking sets the tracking number on a live fulfillment.
func (t *Tracker) UpdateTracking(o *entity.Order, fulfillmentID, trackingNumber string) (*entity.Fulfillment, error) {
	f, ok := o.Fulfillment(fulfillmentID)
	if !ok {
		return nil, &InvalidQuantityError{OrderID: o.ID, Reason: fmt.Sprintf("unknown fulfillment %s", fulfillmentID)}
	}
	if f.Status == entity.FulfillmentCanceled {
		return nil, &AlreadyCanceledError{FulfillmentID: f.ID}
	}
	f.TrackingNumber = trackingNumber
	return f, nil
}

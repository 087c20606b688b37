package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/fulfillment"
)

// CreateFulfillment ships quantities of order lines. Validation is
// all-or-nothing across the requested lines, and the order status is
// reevaluated from the resulting line quantities.
func (e *Engine) CreateFulfillment(ctx context.Context, orderID string, items []fulfillment.LineQuantity, trackingNumber, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.CreateFulfillment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("lines", len(items)),
	))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateFulfill(o); err != nil {
			return err
		}
		f, err := e.tracker.Create(o, items, trackingNumber)
		if err != nil {
			return err
		}
		o.Status = e.machine.Reevaluate(o)
		e.appendEvent(o, entity.EventFulfilled, actor, map[string]any{
			"fulfillment_id": f.ID,
			"lines":          len(f.Lines),
			"status":         string(o.Status),
		})
		return nil
	})
}

// CancelFulfillment reverses a fulfillment's allocations unless the
// carrier reports the shipment settled.
func (e *Engine) CancelFulfillment(ctx context.Context, orderID, fulfillmentID, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.CancelFulfillment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("fulfillment.id", fulfillmentID),
	))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		f, err := e.tracker.Cancel(ctx, o, fulfillmentID)
		if err != nil {
			return err
		}
		o.Status = e.machine.Reevaluate(o)
		e.appendEvent(o, entity.EventFulfillmentCanceled, actor, map[string]any{
			"fulfillment_id": f.ID,
			"status":         string(o.Status),
		})
		return nil
	})
}

// UpdateFulfillmentTracking sets the tracking number on a fulfillment.
func (e *Engine) UpdateFulfillmentTracking(ctx context.Context, orderID, fulfillmentID, trackingNumber, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.UpdateFulfillmentTracking", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("fulfillment.id", fulfillmentID),
	))
	defer span.End()

	if trackingNumber == "" {
		return nil, &ValidationError{Field: "tracking_number", Reason: "tracking number is required"}
	}

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		f, err := e.tracker.UpdateTracking(o, fulfillmentID, trackingNumber)
		if err != nil {
			return err
		}
		e.appendEvent(o, entity.EventTrackingUpdated, actor, map[string]any{
			"fulfillment_id":  f.ID,
			"tracking_number": trackingNumber,
		})
		return nil
	})
}

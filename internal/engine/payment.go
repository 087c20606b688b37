package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/statemachine"
)

// Capture charges amount through the payment gateway and appends a
// CAPTURE ledger entry. The per-order lock is not held across the
// gateway call: the intent is reserved first, the charge runs
// unlocked, and the entry commits under a re-acquired lock against a
// freshly loaded aggregate.
func (e *Engine) Capture(ctx context.Context, orderID string, amount decimal.Decimal, currency, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Capture", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	o, err := e.reserveCapture(ctx, orderID, amount, currency)
	if err != nil {
		return nil, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	err = e.ledger.Charge(chargeCtx, o, amount)
	cancel()
	if err != nil {
		e.locks.unreserve(orderID, amount)
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway charge failed")
		return nil, err
	}

	return e.commitCapture(ctx, orderID, amount, currency, actor)
}

// reserveCapture validates the capture under the lock and records the
// in-flight amount so parallel intents stay within the order total.
func (e *Engine) reserveCapture(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (*entity.Order, error) {
	l := e.locks.acquire(orderID)
	defer e.locks.release(orderID, l)

	o, err := e.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.machine.ValidateLedgerOp(o, statemachine.OpCapture); err != nil {
		return nil, err
	}
	if err := e.ledger.ValidateCapture(o, amount, currency, e.locks.reservedFor(orderID)); err != nil {
		return nil, err
	}
	e.locks.reserve(orderID, amount)
	return o, nil
}

// commitCapture re-acquires the lock, reloads, re-validates, and
// appends the entry. The charge already happened; a conflict here
// means an out-of-band writer raced us and needs operator attention.
func (e *Engine) commitCapture(ctx context.Context, orderID string, amount decimal.Decimal, currency, actor string) (*entity.Order, error) {
	l := e.locks.acquire(orderID)
	defer e.locks.release(orderID, l)
	defer e.locks.unreserve(orderID, amount)

	o, err := e.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	before := len(o.Events)
	entry, err := e.ledger.AppendCapture(o, amount, currency, actor)
	if err != nil {
		e.logger.Error("charge succeeded but ledger append was rejected; manual reconciliation required",
			zap.String("order_id", orderID),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return nil, err
	}
	e.appendEvent(o, entity.EventCaptured, actor, map[string]any{
		"amount": entry.Amount.String(),
		"seq":    entry.Seq,
	})
	if err := e.commit(ctx, o, before); err != nil {
		return nil, err
	}
	return o, nil
}

// Refund returns previously captured funds. No gateway call is made
// here; payout reversal is reconciled downstream off the ledger.
func (e *Engine) Refund(ctx context.Context, orderID string, amount decimal.Decimal, currency, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Refund", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateLedgerOp(o, statemachine.OpRefund); err != nil {
			return err
		}
		entry, err := e.ledger.Refund(o, amount, currency, actor)
		if err != nil {
			return err
		}
		e.appendEvent(o, entity.EventRefunded, actor, map[string]any{
			"amount": entry.Amount.String(),
			"seq":    entry.Seq,
		})
		return nil
	})
}

// Void cancels the payment authorization before any capture.
func (e *Engine) Void(ctx context.Context, orderID, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Void", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateLedgerOp(o, statemachine.OpVoid); err != nil {
			return err
		}
		if _, err := e.ledger.Void(o, actor); err != nil {
			return err
		}
		e.appendEvent(o, entity.EventVoided, actor, nil)
		return nil
	})
}

// MarkAsPaid records a manual payment override bypassing the gateway.
func (e *Engine) MarkAsPaid(ctx context.Context, orderID, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.MarkAsPaid", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateLedgerOp(o, statemachine.OpMarkAsPaid); err != nil {
			return err
		}
		entry, err := e.ledger.MarkAsPaid(o, actor)
		if err != nil {
			return err
		}
		e.appendEvent(o, entity.EventMarkedPaid, actor, map[string]any{
			"amount": entry.Amount.String(),
		})
		return nil
	})
}

// Cancel moves an order to CANCELED. Fully fulfilled orders cannot be
// canceled, only refunded.
func (e *Engine) Cancel(ctx context.Context, orderID, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateCancel(o); err != nil {
			return err
		}
		o.Status = entity.StatusCanceled
		e.appendEvent(o, entity.EventCanceled, actor, nil)
		return nil
	})
}

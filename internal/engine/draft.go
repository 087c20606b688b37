package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/statemachine"
)

// DraftLineInput describes one line on a draft order.
type DraftLineInput struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// CreateDraftInput carries the initial shape of a draft order.
type CreateDraftInput struct {
	Currency string
	Lines    []DraftLineInput
	Address  *entity.Address
	Actor    string
}

// CreateDraft opens a new draft order. Drafts have editable lines and
// no audit events until they are placed.
func (e *Engine) CreateDraft(ctx context.Context, in CreateDraftInput) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.CreateDraft")
	defer span.End()

	currency := in.Currency
	if currency == "" {
		currency = e.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Reason: "currency must be a 3-letter code"}
	}

	now := e.clock.Now()
	o := &entity.Order{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		Status:    entity.StatusDraft,
		Currency:  currency,
		Total:     decimal.Zero,
		Address:   in.Address,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, li := range in.Lines {
		line, err := e.buildLine(o, li)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	o.Total = o.LinesTotal()

	if err := e.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	return o, nil
}

// AddDraftLine appends a line to a draft and recomputes the total.
func (e *Engine) AddDraftLine(ctx context.Context, orderID string, in DraftLineInput) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.AddDraftLine", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if o.Status != entity.StatusDraft {
			return &DraftOnlyError{OrderID: o.ID, Op: "add line"}
		}
		line, err := e.buildLine(o, in)
		if err != nil {
			return err
		}
		o.Lines = append(o.Lines, line)
		o.Total = o.LinesTotal()
		return nil
	})
}

// UpdateDraftLine changes the ordered quantity of a draft line.
func (e *Engine) UpdateDraftLine(ctx context.Context, orderID, lineID string, quantity int) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.UpdateDraftLine", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if o.Status != entity.StatusDraft {
			return &DraftOnlyError{OrderID: o.ID, Op: "update line"}
		}
		line, ok := o.Line(lineID)
		if !ok {
			return ErrNotFound
		}
		line.QuantityOrdered = quantity
		o.Total = o.LinesTotal()
		return nil
	})
}

// RemoveDraftLine deletes a line from a draft.
func (e *Engine) RemoveDraftLine(ctx context.Context, orderID, lineID string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.RemoveDraftLine", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if o.Status != entity.StatusDraft {
			return &DraftOnlyError{OrderID: o.ID, Op: "remove line"}
		}
		for i, l := range o.Lines {
			if l.ID == lineID {
				o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
				o.Total = o.LinesTotal()
				return nil
			}
		}
		return ErrNotFound
	})
}

// DeleteDraft physically removes a draft order. Completed orders are
// never deleted; they are canceled and retained.
func (e *Engine) DeleteDraft(ctx context.Context, orderID string) error {
	ctx, span := engineTracer.Start(ctx, "Engine.DeleteDraft", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	l := e.locks.acquire(orderID)
	defer e.locks.release(orderID, l)

	o, err := e.repo.Load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != entity.StatusDraft {
		return &DraftOnlyError{OrderID: o.ID, Op: "delete"}
	}
	if err := e.repo.DeleteDraft(ctx, o); err != nil {
		return err
	}
	if err := e.cache.Delete(ctx, cacheKey(o.ID)); err != nil {
		e.logger.Warn("orders cache invalidation failed", zap.String("id", o.ID), zap.Error(err))
	}
	return nil
}

// CompleteDraft moves a draft into the fulfillment pipeline. The draft
// needs at least one line and a resolvable address.
func (e *Engine) CompleteDraft(ctx context.Context, orderID, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.CompleteDraft", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if err := e.machine.ValidateCompleteDraft(o); err != nil {
			return err
		}
		if err := e.addresses.Validate(ctx, o.Address); err != nil {
			return &statemachine.InvalidDraftError{Reason: err.Error()}
		}
		o.Status = entity.StatusUnfulfilled
		e.appendEvent(o, entity.EventPlaced, actor, map[string]any{
			"total":    o.Total.String(),
			"currency": o.Currency,
			"lines":    len(o.Lines),
		})
		return nil
	})
}

func (e *Engine) buildLine(o *entity.Order, in DraftLineInput) (*entity.OrderLine, error) {
	if in.ProductRef == "" {
		return nil, &ValidationError{Field: "product_ref", Reason: "product reference is required"}
	}
	if in.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}
	if in.UnitPrice.IsNegative() {
		return nil, &ValidationError{Field: "unit_price", Reason: "unit price cannot be negative"}
	}
	return &entity.OrderLine{
		ID:              uuid.NewString(),
		OrderID:         o.ID,
		ProductRef:      in.ProductRef,
		QuantityOrdered: in.Quantity,
		UnitPrice:       in.UnitPrice,
	}, nil
}

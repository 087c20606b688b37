// Package statemachine validates order status transitions. All checks
// are pure functions of the in-memory aggregate; nothing here touches
// storage or external services.
package statemachine

import (
	"fmt"

	"github.com/Additional-Code/vesta/internal/entity"
)

// Operation names an engine operation for transition error reporting.
type Operation string

const (
	OpCompleteDraft     Operation = "complete_draft"
	OpCancel            Operation = "cancel"
	OpCapture           Operation = "capture"
	OpRefund            Operation = "refund"
	OpVoid              Operation = "void"
	OpMarkAsPaid        Operation = "mark_as_paid"
	OpAddNote           Operation = "add_note"
	OpFulfill           Operation = "fulfill"
	OpCancelFulfillment Operation = "cancel_fulfillment"
)

// IllegalTransitionError reports a transition the machine forbids.
type IllegalTransitionError struct {
	From entity.Status
	To   entity.Status
	Op   Operation
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s during %s", e.From, e.To, e.Op)
}

// InvalidDraftError reports a draft that cannot be completed.
type InvalidDraftError struct {
	Reason string
}

func (e *InvalidDraftError) Error() string {
	return fmt.Sprintf("draft cannot be completed: %s", e.Reason)
}

// AlreadyFulfilledError reports a cancel attempt on a fully shipped order.
type AlreadyFulfilledError struct {
	OrderID string
}

func (e *AlreadyFulfilledError) Error() string {
	return fmt.Sprintf("order %s is fully fulfilled and can only be refunded", e.OrderID)
}

// Machine evaluates status transitions for order aggregates.
type Machine struct{}

// New constructs a Machine.
func New() *Machine {
	return &Machine{}
}

// ValidateCompleteDraft checks a draft is ready to enter the
// fulfillment pipeline. Address resolvability is checked separately by
// the engine through its validator capability.
func (m *Machine) ValidateCompleteDraft(o *entity.Order) error {
	if o.Status != entity.StatusDraft {
		return &IllegalTransitionError{From: o.Status, To: entity.StatusUnfulfilled, Op: OpCompleteDraft}
	}
	if len(o.Lines) == 0 {
		return &InvalidDraftError{Reason: "order has no lines"}
	}
	if o.Address == nil {
		return &InvalidDraftError{Reason: "order has no shipping address"}
	}
	return nil
}

// ValidateCancel checks the order may transition to CANCELED.
func (m *Machine) ValidateCancel(o *entity.Order) error {
	switch o.Status {
	case entity.StatusDraft, entity.StatusUnfulfilled, entity.StatusPartiallyFulfilled:
		return nil
	case entity.StatusFulfilled:
		return &AlreadyFulfilledError{OrderID: o.ID}
	default:
		return &IllegalTransitionError{From: o.Status, To: entity.StatusCanceled, Op: OpCancel}
	}
}

// ValidateLedgerOp checks a money movement is legal in the current
// state. These are self-transitions: the fulfillment status is never
// affected. Drafts carry no money. Canceled orders accept refunds
// only, so captured funds can still be returned after cancellation.
func (m *Machine) ValidateLedgerOp(o *entity.Order, op Operation) error {
	switch o.Status {
	case entity.StatusDraft:
		return &IllegalTransitionError{From: o.Status, To: o.Status, Op: op}
	case entity.StatusCanceled:
		if op == OpRefund {
			return nil
		}
		return &IllegalTransitionError{From: o.Status, To: o.Status, Op: op}
	default:
		return nil
	}
}

// ValidateFulfill checks new fulfillments may be created.
func (m *Machine) ValidateFulfill(o *entity.Order) error {
	switch o.Status {
	case entity.StatusUnfulfilled, entity.StatusPartiallyFulfilled:
		return nil
	default:
		return &IllegalTransitionError{From: o.Status, To: o.Status, Op: OpFulfill}
	}
}

// Reevaluate derives the fulfillment status from line quantities.
// Terminal states are sticky: drafts and canceled orders never move.
func (m *Machine) Reevaluate(o *entity.Order) entity.Status {
	switch o.Status {
	case entity.StatusDraft, entity.StatusCanceled:
		return o.Status
	}
	switch {
	case o.FullyFulfilled():
		return entity.StatusFulfilled
	case o.AnyFulfilled():
		return entity.StatusPartiallyFulfilled
	default:
		return entity.StatusUnfulfilled
	}
}

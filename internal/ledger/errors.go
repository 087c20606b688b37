package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvalidAmountError reports a non-positive amount.
type InvalidAmountError struct {
	OrderID string
	Amount  decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("order %s: amount must be positive, got %s", e.OrderID, e.Amount)
}

// OvercaptureError reports a capture exceeding the remaining total.
type OvercaptureError struct {
	OrderID   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *OvercaptureError) Error() string {
	return fmt.Sprintf("order %s: capture of %s exceeds capturable amount %s", e.OrderID, e.Requested, e.Available)
}

// OverrefundError reports a refund exceeding the net captured amount.
type OverrefundError struct {
	OrderID    string
	Requested  decimal.Decimal
	Refundable decimal.Decimal
}

func (e *OverrefundError) Error() string {
	return fmt.Sprintf("order %s: refund of %s exceeds refundable amount %s", e.OrderID, e.Requested, e.Refundable)
}

// AlreadyCapturedError reports a void or mark-as-paid after captures.
type AlreadyCapturedError struct {
	OrderID  string
	Captured decimal.Decimal
}

func (e *AlreadyCapturedError) Error() string {
	return fmt.Sprintf("order %s: %s already captured", e.OrderID, e.Captured)
}

// MarkedAsPaidError reports an operation blocked by a manual payment
// override.
type MarkedAsPaidError struct {
	OrderID string
}

func (e *MarkedAsPaidError) Error() string {
	return fmt.Sprintf("order %s is manually marked as paid", e.OrderID)
}

// CurrencyMismatchError reports an amount in the wrong currency.
type CurrencyMismatchError struct {
	OrderID string
	Want    string
	Got     string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("order %s: expected currency %s, got %s", e.OrderID, e.Want, e.Got)
}

// GatewayError wraps a payment gateway failure. The triggering capture
// appends nothing; callers may retry the whole operation.
type GatewayError struct {
	OrderID string
	Cause   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("order %s: payment gateway charge failed: %v", e.OrderID, e.Cause)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

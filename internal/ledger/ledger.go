// Package ledger maintains the append-only monetary event log per
// order. Captured and refunded totals are always derived from the
// entries, never stored, so the log is the single source of truth.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/vesta/internal/clock"
	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/gateway"
)

// Ledger validates and appends monetary events. It mutates the
// in-memory aggregate only; persistence is the caller's concern.
type Ledger struct {
	gateway gateway.PaymentGateway
	clock   clock.Clock
}

// New constructs a Ledger over the given gateway and clock.
func New(gw gateway.PaymentGateway, clk clock.Clock) *Ledger {
	return &Ledger{gateway: gw, clock: clk}
}

// CapturedTotal sums all CAPTURE entries.
func (l *Ledger) CapturedTotal(o *entity.Order) decimal.Decimal {
	total := decimal.Zero
	for _, e := range o.Entries {
		if e.Kind == entity.LedgerCapture {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// RefundedTotal sums all REFUND entries.
func (l *Ledger) RefundedTotal(o *entity.Order) decimal.Decimal {
	total := decimal.Zero
	for _, e := range o.Entries {
		if e.Kind == entity.LedgerRefund {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// ValidateCapture checks a capture of amount is legal right now.
// reserved carries amounts of in-flight captures whose gateway call
// has not yet committed, so concurrent intents cannot oversubscribe
// the order total between lock windows.
func (l *Ledger) ValidateCapture(o *entity.Order, amount decimal.Decimal, currency string, reserved decimal.Decimal) error {
	if err := checkAmount(o, amount, currency); err != nil {
		return err
	}
	if o.MarkedAsPaid {
		return &MarkedAsPaidError{OrderID: o.ID}
	}
	committed := l.CapturedTotal(o)
	if committed.Add(reserved).Add(amount).GreaterThan(o.Total) {
		return &OvercaptureError{
			OrderID:   o.ID,
			Requested: amount,
			Available: o.Total.Sub(committed).Sub(reserved),
		}
	}
	return nil
}

// Charge executes the gateway call for a capture. Failures are wrapped
// in GatewayError and nothing is appended; the engine decides whether
// to retry the whole operation.
func (l *Ledger) Charge(ctx context.Context, o *entity.Order, amount decimal.Decimal) error {
	if err := l.gateway.Charge(ctx, o.ID, amount, o.Currency); err != nil {
		return &GatewayError{OrderID: o.ID, Cause: err}
	}
	return nil
}

// AppendCapture re-validates and appends a CAPTURE entry. Called under
// the per-order lock after the gateway charge succeeded.
func (l *Ledger) AppendCapture(o *entity.Order, amount decimal.Decimal, currency, actor string) (*entity.LedgerEntry, error) {
	if err := l.ValidateCapture(o, amount, currency, decimal.Zero); err != nil {
		return nil, err
	}
	return l.append(o, entity.LedgerCapture, amount, actor), nil
}

// Refund appends a REFUND entry bounded by the net captured amount.
func (l *Ledger) Refund(o *entity.Order, amount decimal.Decimal, currency, actor string) (*entity.LedgerEntry, error) {
	if err := checkAmount(o, amount, currency); err != nil {
		return nil, err
	}
	refundable := l.CapturedTotal(o).Sub(l.RefundedTotal(o))
	if amount.GreaterThan(refundable) {
		return nil, &OverrefundError{OrderID: o.ID, Requested: amount, Refundable: refundable}
	}
	return l.append(o, entity.LedgerRefund, amount, actor), nil
}

// Void cancels the authorization. Only legal before any capture.
func (l *Ledger) Void(o *entity.Order, actor string) (*entity.LedgerEntry, error) {
	if captured := l.CapturedTotal(o); !captured.IsZero() {
		return nil, &AlreadyCapturedError{OrderID: o.ID, Captured: captured}
	}
	return l.append(o, entity.LedgerVoid, decimal.Zero, actor), nil
}

// MarkAsPaid records a manual payment override, bypassing the gateway.
// The aggregate flag blocks any later automated capture.
func (l *Ledger) MarkAsPaid(o *entity.Order, actor string) (*entity.LedgerEntry, error) {
	if o.MarkedAsPaid {
		return nil, &MarkedAsPaidError{OrderID: o.ID}
	}
	if captured := l.CapturedTotal(o); !captured.IsZero() {
		return nil, &AlreadyCapturedError{OrderID: o.ID, Captured: captured}
	}
	entry := l.append(o, entity.LedgerManualMarkPaid, o.Total, actor)
	o.MarkedAsPaid = true
	return entry, nil
}

func (l *Ledger) append(o *entity.Order, kind entity.LedgerKind, amount decimal.Decimal, actor string) *entity.LedgerEntry {
	entry := &entity.LedgerEntry{
		OrderID:   o.ID,
		Seq:       o.NextLedgerSeq(),
		Kind:      kind,
		Amount:    amount,
		Actor:     actor,
		CreatedAt: l.clock.Now(),
	}
	o.Entries = append(o.Entries, entry)
	return entry
}

func checkAmount(o *entity.Order, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{OrderID: o.ID, Amount: amount}
	}
	if currency != "" && currency != o.Currency {
		return &CurrencyMismatchError{OrderID: o.ID, Want: o.Currency, Got: currency}
	}
	return nil
}

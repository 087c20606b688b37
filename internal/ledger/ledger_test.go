package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/vesta/internal/entity"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

type fakeGateway struct {
	err     error
	charges int
}

func (g *fakeGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) error {
	g.charges++
	return g.err
}

func newLedger() (*Ledger, *fakeGateway) {
	gw := &fakeGateway{}
	return New(gw, fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}), gw
}

func paidOrder(total int64) *entity.Order {
	return &entity.Order{
		ID:       "order-1",
		Status:   entity.StatusUnfulfilled,
		Currency: "USD",
		Total:    decimal.NewFromInt(total),
	}
}

func TestAppendCapture(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	entry, err := l.AppendCapture(o, decimal.NewFromInt(60), "USD", "ops")
	require.NoError(t, err)
	assert.Equal(t, entity.LedgerCapture, entry.Kind)
	assert.Equal(t, int64(1), entry.Seq)
	assert.True(t, l.CapturedTotal(o).Equal(decimal.NewFromInt(60)))

	entry, err = l.AppendCapture(o, decimal.NewFromInt(40), "USD", "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Seq)
	assert.True(t, l.CapturedTotal(o).Equal(decimal.NewFromInt(100)))
}

func TestAppendCaptureOvercapture(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	_, err := l.AppendCapture(o, decimal.NewFromInt(70), "USD", "ops")
	require.NoError(t, err)

	_, err = l.AppendCapture(o, decimal.NewFromInt(31), "USD", "ops")
	var overcapture *OvercaptureError
	require.ErrorAs(t, err, &overcapture)
	assert.True(t, overcapture.Available.Equal(decimal.NewFromInt(30)))

	// Rejected captures leave the log untouched.
	assert.Len(t, o.Entries, 1)
	assert.True(t, l.CapturedTotal(o).Equal(decimal.NewFromInt(70)))
}

func TestValidateCaptureReserved(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	// An in-flight reservation counts against the capturable amount.
	err := l.ValidateCapture(o, decimal.NewFromInt(50), "USD", decimal.NewFromInt(60))
	var overcapture *OvercaptureError
	require.ErrorAs(t, err, &overcapture)
	assert.True(t, overcapture.Available.Equal(decimal.NewFromInt(40)))

	assert.NoError(t, l.ValidateCapture(o, decimal.NewFromInt(40), "USD", decimal.NewFromInt(60)))
}

func TestCaptureRejectsBadInput(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	var invalid *InvalidAmountError
	_, err := l.AppendCapture(o, decimal.Zero, "USD", "ops")
	assert.ErrorAs(t, err, &invalid)
	_, err = l.AppendCapture(o, decimal.NewFromInt(-5), "USD", "ops")
	assert.ErrorAs(t, err, &invalid)

	var mismatch *CurrencyMismatchError
	_, err = l.AppendCapture(o, decimal.NewFromInt(10), "EUR", "ops")
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "USD", mismatch.Want)

	assert.Empty(t, o.Entries)
}

func TestCaptureBlockedByMarkAsPaid(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	_, err := l.MarkAsPaid(o, "ops")
	require.NoError(t, err)
	assert.True(t, o.MarkedAsPaid)

	var marked *MarkedAsPaidError
	_, err = l.AppendCapture(o, decimal.NewFromInt(10), "USD", "ops")
	assert.ErrorAs(t, err, &marked)
}

func TestRefundBounds(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	_, err := l.AppendCapture(o, decimal.NewFromInt(80), "USD", "ops")
	require.NoError(t, err)

	_, err = l.Refund(o, decimal.NewFromInt(50), "USD", "support")
	require.NoError(t, err)

	// Only 30 of the captured 80 remains refundable.
	var overrefund *OverrefundError
	_, err = l.Refund(o, decimal.NewFromInt(31), "USD", "support")
	require.ErrorAs(t, err, &overrefund)
	assert.True(t, overrefund.Refundable.Equal(decimal.NewFromInt(30)))

	_, err = l.Refund(o, decimal.NewFromInt(30), "USD", "support")
	require.NoError(t, err)
	assert.True(t, l.RefundedTotal(o).Equal(decimal.NewFromInt(80)))
}

func TestVoid(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	entry, err := l.Void(o, "ops")
	require.NoError(t, err)
	assert.Equal(t, entity.LedgerVoid, entry.Kind)
	assert.True(t, entry.Amount.IsZero())

	captured := paidOrder(100)
	_, err = l.AppendCapture(captured, decimal.NewFromInt(10), "USD", "ops")
	require.NoError(t, err)

	var already *AlreadyCapturedError
	_, err = l.Void(captured, "ops")
	require.ErrorAs(t, err, &already)
	assert.True(t, already.Captured.Equal(decimal.NewFromInt(10)))
}

func TestMarkAsPaid(t *testing.T) {
	l, _ := newLedger()
	o := paidOrder(100)

	entry, err := l.MarkAsPaid(o, "ops")
	require.NoError(t, err)
	assert.Equal(t, entity.LedgerManualMarkPaid, entry.Kind)
	assert.True(t, entry.Amount.Equal(o.Total))

	// The manual entry does not count toward captured funds.
	assert.True(t, l.CapturedTotal(o).IsZero())

	var marked *MarkedAsPaidError
	_, err = l.MarkAsPaid(o, "ops")
	assert.ErrorAs(t, err, &marked)

	captured := paidOrder(100)
	_, err = l.AppendCapture(captured, decimal.NewFromInt(10), "USD", "ops")
	require.NoError(t, err)
	var already *AlreadyCapturedError
	_, err = l.MarkAsPaid(captured, "ops")
	assert.ErrorAs(t, err, &already)
}

func TestChargeWrapsGatewayFailure(t *testing.T) {
	l, gw := newLedger()
	o := paidOrder(100)

	cause := errors.New("card declined")
	gw.err = cause

	err := l.Charge(context.Background(), o, decimal.NewFromInt(50))
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, gw.charges)

	// A failed charge appends nothing.
	assert.Empty(t, o.Entries)
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// LedgerKind tags a monetary event recorded against an order.
type LedgerKind string

const (
	LedgerCapture        LedgerKind = "CAPTURE"
	LedgerRefund         LedgerKind = "REFUND"
	LedgerVoid           LedgerKind = "VOID"
	LedgerManualMarkPaid LedgerKind = "MANUAL_MARK_PAID"
)

// LedgerEntry is an immutable monetary event. Seq is monotonically
// increasing per order; rows are never updated or deleted.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_entries"`

	OrderID   string          `bun:"order_id,pk"`
	Seq       int64           `bun:"seq,pk"`
	Kind      LedgerKind      `bun:"kind,notnull"`
	Amount    decimal.Decimal `bun:"amount,notnull"`
	Actor     string          `bun:"actor,notnull"`
	CreatedAt time.Time       `bun:"created_at,notnull"`
}

// NextLedgerSeq returns the sequence number for the next ledger entry.
func (o *Order) NextLedgerSeq() int64 {
	var max int64
	for _, e := range o.Entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusUnfulfilled        Status = "UNFULFILLED"
	StatusPartiallyFulfilled Status = "PARTIALLY_FULFILLED"
	StatusFulfilled          Status = "FULFILLED"
	StatusCanceled           Status = "CANCELED"
)

// Address is the shipping/billing destination attached to an order.
type Address struct {
	Name        string `json:"name"`
	StreetLine  string `json:"street_line"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

// Order is the aggregate root. All mutation goes through the engine;
// child collections are append-only except draft lines.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID           string            `bun:",pk"`
	Token        string            `bun:"token,notnull"`
	Status       Status            `bun:"status,notnull"`
	Currency     string            `bun:"currency,notnull"`
	Total        decimal.Decimal   `bun:"total,notnull"`
	MarkedAsPaid bool              `bun:"marked_as_paid"`
	Address      *Address          `bun:"address,type:jsonb,nullzero"`
	Metadata     map[string]string `bun:"metadata,type:jsonb,nullzero"`
	Version      int64             `bun:"version,notnull"`
	CreatedAt    time.Time         `bun:"created_at,notnull"`
	UpdatedAt    time.Time         `bun:"updated_at,notnull"`

	Lines        []*OrderLine   `bun:"rel:has-many,join:id=order_id"`
	Entries      []*LedgerEntry `bun:"rel:has-many,join:id=order_id"`
	Fulfillments []*Fulfillment `bun:"rel:has-many,join:id=order_id"`
	Events       []*OrderEvent  `bun:"rel:has-many,join:id=order_id"`
}

// OrderLine is a single purchasable position on an order.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	ID                string          `bun:",pk"`
	OrderID           string          `bun:"order_id,notnull"`
	ProductRef        string          `bun:"product_ref,notnull"`
	QuantityOrdered   int             `bun:"quantity_ordered,notnull"`
	QuantityFulfilled int             `bun:"quantity_fulfilled,notnull"`
	UnitPrice         decimal.Decimal `bun:"unit_price,notnull"`
}

// Line returns the order line with the given id.
func (o *Order) Line(id string) (*OrderLine, bool) {
	for _, l := range o.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// LinesTotal recomputes the sum of quantity times unit price across lines.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.QuantityOrdered))))
	}
	return total
}

// FullyFulfilled reports whether every line is shipped in full.
func (o *Order) FullyFulfilled() bool {
	if len(o.Lines) == 0 {
		return false
	}
	for _, l := range o.Lines {
		if l.QuantityFulfilled < l.QuantityOrdered {
			return false
		}
	}
	return true
}

// AnyFulfilled reports whether at least one unit has shipped.
func (o *Order) AnyFulfilled() bool {
	for _, l := range o.Lines {
		if l.QuantityFulfilled > 0 {
			return true
		}
	}
	return false
}

// Fulfillment returns the fulfillment with the given id.
func (o *Order) Fulfillment(id string) (*Fulfillment, bool) {
	for _, f := range o.Fulfillments {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

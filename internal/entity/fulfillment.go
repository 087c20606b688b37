package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// FulfillmentStatus enumerates fulfillment states.
type FulfillmentStatus string

const (
	FulfillmentCreated  FulfillmentStatus = "CREATED"
	FulfillmentCanceled FulfillmentStatus = "CANCELED"
)

// Fulfillment records shipping some quantity of order lines.
type Fulfillment struct {
	bun.BaseModel `bun:"table:fulfillments"`

	ID             string            `bun:",pk"`
	OrderID        string            `bun:"order_id,notnull"`
	Status         FulfillmentStatus `bun:"status,notnull"`
	TrackingNumber string            `bun:"tracking_number,nullzero"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`

	Lines []*FulfillmentLine `bun:"rel:has-many,join:id=fulfillment_id"`
}

// FulfillmentLine allocates a quantity of one order line to a fulfillment.
type FulfillmentLine struct {
	bun.BaseModel `bun:"table:fulfillment_lines"`

	ID            string `bun:",pk"`
	FulfillmentID string `bun:"fulfillment_id,notnull"`
	OrderLineID   string `bun:"order_line_id,notnull"`
	Quantity      int    `bun:"quantity,notnull"`
}

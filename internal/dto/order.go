package dto

import (
	"time"

	"github.com/Additional-Code/vesta/internal/entity"
)

// OrderResponse represents a full order snapshot as exposed via
// transport layers.
type OrderResponse struct {
	ID           string                `json:"id"`
	Token        string                `json:"token"`
	Status       string                `json:"status"`
	Currency     string                `json:"currency"`
	Total        string                `json:"total"`
	MarkedAsPaid bool                  `json:"marked_as_paid"`
	Address      *entity.Address       `json:"address,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	Lines        []LineResponse        `json:"lines"`
	Entries      []LedgerEntryResponse `json:"ledger_entries"`
	Fulfillments []FulfillmentResponse `json:"fulfillments"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// LineResponse represents one order line.
type LineResponse struct {
	ID                string `json:"id"`
	ProductRef        string `json:"product_ref"`
	QuantityOrdered   int    `json:"quantity_ordered"`
	QuantityFulfilled int    `json:"quantity_fulfilled"`
	UnitPrice         string `json:"unit_price"`
}

// LedgerEntryResponse represents one monetary event.
type LedgerEntryResponse struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Amount    string    `json:"amount"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// FulfillmentResponse represents one fulfillment with its allocations.
type FulfillmentResponse struct {
	ID             string                    `json:"id"`
	Status         string                    `json:"status"`
	TrackingNumber string                    `json:"tracking_number,omitempty"`
	Lines          []FulfillmentLineResponse `json:"lines"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// FulfillmentLineResponse allocates a quantity of one line.
type FulfillmentLineResponse struct {
	OrderLineID string `json:"order_line_id"`
	Quantity    int    `json:"quantity"`
}

// EventResponse represents one audit-trail event.
type EventResponse struct {
	OrderID   string         `json:"order_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Actor     string         `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}

// BulkCancelItemResponse reports one order's outcome within a bulk cancel.
type BulkCancelItemResponse struct {
	OrderID string `json:"order_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

// FromOrder maps an aggregate to its response shape.
func FromOrder(o *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:           o.ID,
		Token:        o.Token,
		Status:       string(o.Status),
		Currency:     o.Currency,
		Total:        o.Total.String(),
		MarkedAsPaid: o.MarkedAsPaid,
		Address:      o.Address,
		Metadata:     o.Metadata,
		Lines:        make([]LineResponse, 0, len(o.Lines)),
		Entries:      make([]LedgerEntryResponse, 0, len(o.Entries)),
		Fulfillments: make([]FulfillmentResponse, 0, len(o.Fulfillments)),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, LineResponse{
			ID:                l.ID,
			ProductRef:        l.ProductRef,
			QuantityOrdered:   l.QuantityOrdered,
			QuantityFulfilled: l.QuantityFulfilled,
			UnitPrice:         l.UnitPrice.String(),
		})
	}
	for _, e := range o.Entries {
		resp.Entries = append(resp.Entries, LedgerEntryResponse{
			Seq:       e.Seq,
			Kind:      string(e.Kind),
			Amount:    e.Amount.String(),
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		})
	}
	for _, f := range o.Fulfillments {
		fr := FulfillmentResponse{
			ID:             f.ID,
			Status:         string(f.Status),
			TrackingNumber: f.TrackingNumber,
			Lines:          make([]FulfillmentLineResponse, 0, len(f.Lines)),
			CreatedAt:      f.CreatedAt,
		}
		for _, fl := range f.Lines {
			fr.Lines = append(fr.Lines, FulfillmentLineResponse{
				OrderLineID: fl.OrderLineID,
				Quantity:    fl.Quantity,
			})
		}
		resp.Fulfillments = append(resp.Fulfillments, fr)
	}
	return resp
}

// FromEvent maps one audit event to its response shape.
func FromEvent(e *entity.OrderEvent) EventResponse {
	return EventResponse{
		OrderID:   e.OrderID,
		Seq:       e.Seq,
		Type:      string(e.Type),
		Payload:   e.Payload,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt,
	}
}

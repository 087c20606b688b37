package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// EventType is the closed set of audit-trail event tags.
type EventType string

const (
	EventPlaced              EventType = "PLACED"
	EventNoteAdded           EventType = "NOTE_ADDED"
	EventCaptured            EventType = "CAPTURED"
	EventRefunded            EventType = "REFUNDED"
	EventVoided              EventType = "VOIDED"
	EventFulfilled           EventType = "FULFILLED"
	EventFulfillmentCanceled EventType = "FULFILLMENT_CANCELED"
	EventTrackingUpdated     EventType = "TRACKING_UPDATED"
	EventCanceled            EventType = "CANCELED"
	EventMarkedPaid          EventType = "MARKED_PAID"
)

// OrderEvent is one append-only audit record. Exactly one event is
// written per successful engine operation; the sequence ordering per
// order is the activity feed.
type OrderEvent struct {
	bun.BaseModel `bun:"table:order_events"`

	OrderID   string         `bun:"order_id,pk"`
	Seq       int64          `bun:"seq,pk"`
	Type      EventType      `bun:"type,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb,nullzero"`
	Actor     string         `bun:"actor,notnull"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

// NextEventSeq returns the sequence number for the next order event.
func (o *Order) NextEventSeq() int64 {
	var max int64
	for _, e := range o.Events {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1
}

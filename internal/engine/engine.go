// Package engine exposes the order-level operations behind the public
// surface: capture, refund, void, mark-as-paid, cancel, bulk-cancel,
// draft management, fulfillments, notes, and metadata. It serializes
// work per order and is the only writer of order aggregates.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/cache"
	"github.com/Additional-Code/vesta/internal/clock"
	"github.com/Additional-Code/vesta/internal/config"
	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/fulfillment"
	"github.com/Additional-Code/vesta/internal/ledger"
	"github.com/Additional-Code/vesta/internal/messaging"
	"github.com/Additional-Code/vesta/internal/shipping"
	"github.com/Additional-Code/vesta/internal/statemachine"
)

var (
	engineTracer = otel.Tracer("github.com/Additional-Code/vesta/engine")
	engineMeter  = otel.Meter("github.com/Additional-Code/vesta/engine")
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrVersionConflict is returned when a concurrent writer won the
// optimistic version check. Under the per-order lock this indicates an
// out-of-process writer.
var ErrVersionConflict = errors.New("order version conflict")

// Repository is the persistence port for order aggregates.
type Repository interface {
	Create(ctx context.Context, o *entity.Order) error
	Load(ctx context.Context, id string) (*entity.Order, error)
	LoadByToken(ctx context.Context, token string) (*entity.Order, error)
	Save(ctx context.Context, o *entity.Order) error
	DeleteDraft(ctx context.Context, o *entity.Order) error
	RecentEvents(ctx context.Context, limit int) ([]*entity.OrderEvent, error)
}

// Engine orchestrates the state machine, ledger, and fulfillment
// tracker behind order-level operations.
type Engine struct {
	repo      Repository
	ledger    *ledger.Ledger
	tracker   *fulfillment.Tracker
	machine   *statemachine.Machine
	addresses shipping.AddressValidator
	locks     *lockTable
	cache     cache.Store
	publisher messaging.Client
	clock     clock.Clock
	logger    *zap.Logger

	cacheTTL        time.Duration
	gatewayTimeout  time.Duration
	bulkConcurrency int
	defaultCurrency string
	publishEnabled  bool

	eventsCommitted metric.Int64Counter
}

// Params defines dependencies for constructing the Engine.
type Params struct {
	fx.In

	Repository Repository
	Ledger     *ledger.Ledger
	Tracker    *fulfillment.Tracker
	Machine    *statemachine.Machine
	Addresses  shipping.AddressValidator
	Cache      cache.Store
	Publisher  messaging.Client
	Clock      clock.Clock
	Config     config.Config
	Logger     *zap.Logger
}

// New wires a new Engine instance.
func New(p Params) *Engine {
	eventsCommitted, err := engineMeter.Int64Counter("orders.events.committed",
		metric.WithDescription("Order lifecycle events committed to the audit trail"))
	if err != nil {
		p.Logger.Warn("engine counter registration failed", zap.Error(err))
	}

	return &Engine{
		repo:            p.Repository,
		ledger:          p.Ledger,
		tracker:         p.Tracker,
		machine:         p.Machine,
		addresses:       p.Addresses,
		locks:           newLockTable(),
		cache:           p.Cache,
		publisher:       p.Publisher,
		clock:           p.Clock,
		logger:          p.Logger,
		cacheTTL:        p.Config.Cache.DefaultTTL,
		gatewayTimeout:  p.Config.Gateway.Timeout,
		bulkConcurrency: p.Config.Engine.BulkConcurrency,
		defaultCurrency: p.Config.Engine.DefaultCurrency,
		publishEnabled:  p.Config.Messaging.Enabled,
		eventsCommitted: eventsCommitted,
	}
}

// Get retrieves an order snapshot by id, consulting cache when available.
func (e *Engine) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if o, err := e.getFromCache(ctx, id); err == nil {
		return o, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		e.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	o, err := e.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}

	if err := e.storeInCache(ctx, o); err != nil {
		e.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	}
	return o, nil
}

// GetByToken retrieves an order by its externally shared token.
func (e *Engine) GetByToken(ctx context.Context, token string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.GetByToken")
	defer span.End()

	o, err := e.repo.LoadByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, fmt.Errorf("load order by token: %w", err)
	}
	return o, nil
}

// Events returns the audit trail of one order in sequence order.
func (e *Engine) Events(ctx context.Context, id string) ([]*entity.OrderEvent, error) {
	o, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.Events, nil
}

// RecentEvents returns the newest events across all orders, feeding
// the homepage activity view.
func (e *Engine) RecentEvents(ctx context.Context, limit int) ([]*entity.OrderEvent, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.RecentEvents")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	return e.repo.RecentEvents(ctx, limit)
}

// AddNote appends a NOTE_ADDED event. Notes are allowed in every
// state, including drafts and canceled orders.
func (e *Engine) AddNote(ctx context.Context, orderID, message, actor string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.AddNote", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if message == "" {
		return nil, &ValidationError{Field: "message", Reason: "note message is required"}
	}

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		e.appendEvent(o, entity.EventNoteAdded, actor, map[string]any{"message": message})
		return nil
	})
}

// UpdateMetadata sets one metadata key on the order aggregate.
func (e *Engine) UpdateMetadata(ctx context.Context, orderID, key, value string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.UpdateMetadata", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if key == "" {
		return nil, &ValidationError{Field: "key", Reason: "metadata key is required"}
	}

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string)
		}
		o.Metadata[key] = value
		return nil
	})
}

// DeleteMetadata removes one metadata key from the order aggregate.
func (e *Engine) DeleteMetadata(ctx context.Context, orderID, key string) (*entity.Order, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.DeleteMetadata", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return e.mutate(ctx, orderID, func(o *entity.Order) error {
		delete(o.Metadata, key)
		return nil
	})
}

// mutate runs fn on the aggregate under the per-order lock and commits
// the result. Validation failures abort before any persistence.
func (e *Engine) mutate(ctx context.Context, orderID string, fn func(*entity.Order) error) (*entity.Order, error) {
	l := e.locks.acquire(orderID)
	defer e.locks.release(orderID, l)

	o, err := e.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	before := len(o.Events)
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := e.commit(ctx, o, before); err != nil {
		return nil, err
	}
	return o, nil
}

// commit persists the aggregate, drops the stale cache snapshot, and
// publishes the events appended by this mutation.
func (e *Engine) commit(ctx context.Context, o *entity.Order, publishFrom int) error {
	o.UpdatedAt = e.clock.Now()
	if err := e.repo.Save(ctx, o); err != nil {
		return err
	}
	if err := e.cache.Delete(ctx, cacheKey(o.ID)); err != nil {
		e.logger.Warn("orders cache invalidation failed", zap.String("id", o.ID), zap.Error(err))
	}
	for _, ev := range o.Events[publishFrom:] {
		if e.eventsCommitted != nil {
			e.eventsCommitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(ev.Type))))
		}
		e.publishEvent(ctx, o, ev)
	}
	return nil
}

// appendEvent records exactly one audit event for the operation.
func (e *Engine) appendEvent(o *entity.Order, typ entity.EventType, actor string, payload map[string]any) *entity.OrderEvent {
	ev := &entity.OrderEvent{
		OrderID:   o.ID,
		Seq:       o.NextEventSeq(),
		Type:      typ,
		Payload:   payload,
		Actor:     actor,
		CreatedAt: e.clock.Now(),
	}
	o.Events = append(o.Events, ev)
	return ev
}

func (e *Engine) publishEvent(ctx context.Context, o *entity.Order, ev *entity.OrderEvent) {
	if !e.publishEnabled || e.publisher == nil {
		return
	}
	msg := EventMessage{
		OrderID:   ev.OrderID,
		Seq:       ev.Seq,
		Type:      ev.Type,
		Status:    o.Status,
		Payload:   ev.Payload,
		Actor:     ev.Actor,
		CreatedAt: ev.CreatedAt,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		e.logger.Error("marshal order event", zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, []byte(o.ID), value); err != nil {
		e.logger.Error("publish order event", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func cacheKey(id string) string {
	return "orders:" + id
}

func (e *Engine) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	if e.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := e.cache.Get(ctx, cacheKey(id))
	if err != nil {
		return nil, err
	}
	var o entity.Order
	if err := json.Unmarshal(bytes, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (e *Engine) storeInCache(ctx context.Context, o *entity.Order) error {
	if e.cache == nil || o == nil {
		return nil
	}
	bytes, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, cacheKey(o.ID), bytes, e.cacheTTL)
}

// EventMessage is published to the bus for every committed OrderEvent.
type EventMessage struct {
	OrderID   string           `json:"order_id"`
	Seq       int64            `json:"seq"`
	Type      entity.EventType `json:"type"`
	Status    entity.Status    `json:"status"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Actor     string           `json:"actor"`
	CreatedAt time.Time        `json:"created_at"`
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/cache"
	"github.com/Additional-Code/vesta/internal/config"
	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/fulfillment"
	"github.com/Additional-Code/vesta/internal/ledger"
	"github.com/Additional-Code/vesta/internal/messaging"
	"github.com/Additional-Code/vesta/internal/statemachine"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

// memoryRepository clones aggregates on every load so mutations only
// become visible through Save, mirroring the database round-trip.
type memoryRepository struct {
	mu     sync.Mutex
	orders map[string]*entity.Order
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{orders: make(map[string]*entity.Order)}
}

func cloneOrder(o *entity.Order) *entity.Order {
	raw, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out entity.Order
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

func (r *memoryRepository) Create(ctx context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *memoryRepository) Load(ctx context.Context, id string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memoryRepository) LoadByToken(ctx context.Context, token string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Token == token {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) Save(ctx context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return ErrNotFound
	}
	o.Version++
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *memoryRepository) DeleteDraft(ctx context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok || stored.Status != entity.StatusDraft {
		return ErrNotFound
	}
	delete(r.orders, o.ID)
	return nil
}

func (r *memoryRepository) RecentEvents(ctx context.Context, limit int) ([]*entity.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []*entity.OrderEvent
	for _, o := range r.orders {
		events = append(events, o.Events...)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].Seq > events[j].Seq
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

type missStore struct{}

func (missStore) Get(context.Context, string) ([]byte, error) { return nil, cache.ErrCacheMiss }
func (missStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (missStore) Delete(context.Context, string) error { return nil }

type recordingPublisher struct {
	mu       sync.Mutex
	messages []EventMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, key []byte, value []byte) error {
	var msg EventMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Consume(ctx context.Context, handler messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "orders" }

type fakeGateway struct {
	mu      sync.Mutex
	err     error
	charges int
}

func (g *fakeGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	return g.err
}

type fakeAddressValidator struct {
	err error
}

func (v fakeAddressValidator) Validate(ctx context.Context, addr *entity.Address) error {
	return v.err
}

type fakeCarrier struct {
	settled map[string]bool
}

func (c *fakeCarrier) Settled(ctx context.Context, trackingNumber string) (bool, error) {
	return c.settled[trackingNumber], nil
}

type harness struct {
	engine    *Engine
	repo      *memoryRepository
	gateway   *fakeGateway
	carrier   *fakeCarrier
	publisher *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := newMemoryRepository()
	gw := &fakeGateway{}
	carrier := &fakeCarrier{settled: map[string]bool{}}
	publisher := &recordingPublisher{}
	clk := fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	cfg := config.Config{
		Cache:     config.Cache{DefaultTTL: time.Minute},
		Gateway:   config.Gateway{Timeout: time.Second},
		Engine:    config.Engine{BulkConcurrency: 4, DefaultCurrency: "USD"},
		Messaging: config.Messaging{Enabled: true},
	}

	eng := New(Params{
		Repository: repo,
		Ledger:     ledger.New(gw, clk),
		Tracker:    fulfillment.New(carrier, clk),
		Machine:    statemachine.New(),
		Addresses:  fakeAddressValidator{},
		Cache:      missStore{},
		Publisher:  publisher,
		Clock:      clk,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	return &harness{engine: eng, repo: repo, gateway: gw, carrier: carrier, publisher: publisher}
}

func (h *harness) placedOrder(t *testing.T, quantities ...int) *entity.Order {
	t.Helper()
	ctx := context.Background()

	in := CreateDraftInput{
		Currency: "USD",
		Address:  &entity.Address{StreetLine: "1 Main St", City: "Springfield", CountryCode: "US"},
		Actor:    "test",
	}
	for i, q := range quantities {
		in.Lines = append(in.Lines, DraftLineInput{
			ProductRef: "SKU-" + string(rune('A'+i)),
			Quantity:   q,
			UnitPrice:  decimal.NewFromInt(10),
		})
	}

	o, err := h.engine.CreateDraft(ctx, in)
	require.NoError(t, err)
	o, err = h.engine.CompleteDraft(ctx, o.ID, "test")
	require.NoError(t, err)
	return o
}

func TestDraftLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o, err := h.engine.CreateDraft(ctx, CreateDraftInput{
		Lines: []DraftLineInput{
			{ProductRef: "SKU-A", Quantity: 2, UnitPrice: decimal.NewFromInt(25)},
		},
		Address: &entity.Address{StreetLine: "1 Main St", City: "Springfield", CountryCode: "US"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, o.Status)
	assert.Equal(t, "USD", o.Currency, "default currency applies")
	assert.NotEmpty(t, o.Token)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, o.Events, "drafts carry no audit events")

	o, err = h.engine.AddDraftLine(ctx, o.ID, DraftLineInput{ProductRef: "SKU-B", Quantity: 1, UnitPrice: decimal.NewFromInt(30)})
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(80)))

	o, err = h.engine.UpdateDraftLine(ctx, o.ID, o.Lines[0].ID, 4)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(130)))

	o, err = h.engine.RemoveDraftLine(ctx, o.ID, o.Lines[1].ID)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(100)))
	assert.Len(t, o.Lines, 1)

	o, err = h.engine.CompleteDraft(ctx, o.ID, "clerk")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUnfulfilled, o.Status)
	require.Len(t, o.Events, 1)
	assert.Equal(t, entity.EventPlaced, o.Events[0].Type)
	assert.Equal(t, "clerk", o.Events[0].Actor)

	// Line edits are sealed once the draft is placed.
	_, err = h.engine.AddDraftLine(ctx, o.ID, DraftLineInput{ProductRef: "SKU-C", Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
	var draftOnly *DraftOnlyError
	assert.ErrorAs(t, err, &draftOnly)
}

func TestCompleteDraftRequiresAddressAndLines(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	noAddress, err := h.engine.CreateDraft(ctx, CreateDraftInput{
		Lines: []DraftLineInput{{ProductRef: "SKU-A", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	var invalid *statemachine.InvalidDraftError
	_, err = h.engine.CompleteDraft(ctx, noAddress.ID, "test")
	assert.ErrorAs(t, err, &invalid)

	noLines, err := h.engine.CreateDraft(ctx, CreateDraftInput{
		Address: &entity.Address{StreetLine: "1 Main St", City: "Springfield", CountryCode: "US"},
	})
	require.NoError(t, err)
	_, err = h.engine.CompleteDraft(ctx, noLines.ID, "test")
	assert.ErrorAs(t, err, &invalid)
}

func TestDeleteDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.engine.CreateDraft(ctx, CreateDraftInput{})
	require.NoError(t, err)
	require.NoError(t, h.engine.DeleteDraft(ctx, draft.ID))

	_, err = h.engine.Get(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	placed := h.placedOrder(t, 1)
	var draftOnly *DraftOnlyError
	assert.ErrorAs(t, h.engine.DeleteDraft(ctx, placed.ID), &draftOnly)
}

func TestCaptureFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 10) // total 100

	o, err := h.engine.Capture(ctx, o.ID, decimal.NewFromInt(60), "USD", "ops")
	require.NoError(t, err)
	require.Len(t, o.Entries, 1)
	assert.Equal(t, entity.LedgerCapture, o.Entries[0].Kind)
	assert.Equal(t, 1, h.gateway.charges)

	last := o.Events[len(o.Events)-1]
	assert.Equal(t, entity.EventCaptured, last.Type)

	// The second capture is bounded by the remaining total; the gateway
	// is never consulted for a doomed amount.
	_, err = h.engine.Capture(ctx, o.ID, decimal.NewFromInt(41), "USD", "ops")
	var overcapture *ledger.OvercaptureError
	require.ErrorAs(t, err, &overcapture)
	assert.Equal(t, 1, h.gateway.charges)

	stored, err := h.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Entries, 1)
}

func TestCaptureGatewayFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 10)

	h.gateway.err = errors.New("card declined")
	_, err := h.engine.Capture(ctx, o.ID, decimal.NewFromInt(50), "USD", "ops")
	var gwErr *ledger.GatewayError
	require.ErrorAs(t, err, &gwErr)

	// Nothing was appended, and the reservation was released so a
	// retry can use the full amount.
	stored, err := h.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Entries)

	h.gateway.err = nil
	_, err = h.engine.Capture(ctx, o.ID, decimal.NewFromInt(100), "USD", "ops")
	require.NoError(t, err)
}

func TestCaptureRejectedOnDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.engine.CreateDraft(ctx, CreateDraftInput{
		Lines: []DraftLineInput{{ProductRef: "SKU-A", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	var transition *statemachine.IllegalTransitionError
	_, err = h.engine.Capture(ctx, draft.ID, decimal.NewFromInt(10), "USD", "ops")
	assert.ErrorAs(t, err, &transition)
	assert.Equal(t, 0, h.gateway.charges)
}

func TestMarkAsPaidBlocksCapture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 10)

	o, err := h.engine.MarkAsPaid(ctx, o.ID, "ops")
	require.NoError(t, err)
	assert.True(t, o.MarkedAsPaid)
	require.Len(t, o.Entries, 1)
	assert.Equal(t, entity.LedgerManualMarkPaid, o.Entries[0].Kind)
	assert.True(t, o.Entries[0].Amount.Equal(o.Total))

	var marked *ledger.MarkedAsPaidError
	_, err = h.engine.Capture(ctx, o.ID, decimal.NewFromInt(10), "USD", "ops")
	assert.ErrorAs(t, err, &marked)
	assert.Equal(t, 0, h.gateway.charges)
}

func TestRefundAfterCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 10)

	_, err := h.engine.Capture(ctx, o.ID, decimal.NewFromInt(80), "USD", "ops")
	require.NoError(t, err)

	o, err = h.engine.Cancel(ctx, o.ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCanceled, o.Status)

	// Captured funds stay refundable after cancellation.
	o, err = h.engine.Refund(ctx, o.ID, decimal.NewFromInt(80), "USD", "support")
	require.NoError(t, err)
	assert.Equal(t, entity.EventRefunded, o.Events[len(o.Events)-1].Type)

	// Anything else on a canceled order is rejected.
	var transition *statemachine.IllegalTransitionError
	_, err = h.engine.MarkAsPaid(ctx, o.ID, "ops")
	assert.ErrorAs(t, err, &transition)
}

func TestFulfillmentRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 4, 2)

	o, err := h.engine.CreateFulfillment(ctx, o.ID, []fulfillment.LineQuantity{
		{LineID: o.Lines[0].ID, Quantity: 2},
	}, "", "warehouse")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPartiallyFulfilled, o.Status)

	o, err = h.engine.CreateFulfillment(ctx, o.ID, []fulfillment.LineQuantity{
		{LineID: o.Lines[0].ID, Quantity: 2},
		{LineID: o.Lines[1].ID, Quantity: 2},
	}, "TRACK-1", "warehouse")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFulfilled, o.Status)

	// A fully fulfilled order cannot be canceled.
	var already *statemachine.AlreadyFulfilledError
	_, err = h.engine.Cancel(ctx, o.ID, "ops")
	assert.ErrorAs(t, err, &already)

	// Canceling the second fulfillment rolls the status back.
	o, err = h.engine.CancelFulfillment(ctx, o.ID, o.Fulfillments[1].ID, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPartiallyFulfilled, o.Status)
	assert.Equal(t, entity.EventFulfillmentCanceled, o.Events[len(o.Events)-1].Type)
}

func TestCancelFulfillmentSettled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 2)

	o, err := h.engine.CreateFulfillment(ctx, o.ID, []fulfillment.LineQuantity{
		{LineID: o.Lines[0].ID, Quantity: 2},
	}, "TRACK-9", "warehouse")
	require.NoError(t, err)

	h.carrier.settled["TRACK-9"] = true

	var settled *fulfillment.SettledError
	_, err = h.engine.CancelFulfillment(ctx, o.ID, o.Fulfillments[0].ID, "warehouse")
	require.ErrorAs(t, err, &settled)

	stored, err := h.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFulfilled, stored.Status)
}

func TestUpdateFulfillmentTracking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 2)

	o, err := h.engine.CreateFulfillment(ctx, o.ID, []fulfillment.LineQuantity{
		{LineID: o.Lines[0].ID, Quantity: 1},
	}, "", "warehouse")
	require.NoError(t, err)

	_, err = h.engine.UpdateFulfillmentTracking(ctx, o.ID, o.Fulfillments[0].ID, "", "warehouse")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	o, err = h.engine.UpdateFulfillmentTracking(ctx, o.ID, o.Fulfillments[0].ID, "TRACK-7", "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "TRACK-7", o.Fulfillments[0].TrackingNumber)
	assert.Equal(t, entity.EventTrackingUpdated, o.Events[len(o.Events)-1].Type)
}

func TestBulkCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.placedOrder(t, 1)
	b := h.placedOrder(t, 2)
	c := h.placedOrder(t, 3)

	// b becomes fully fulfilled and must fail; the rest still cancel.
	_, err := h.engine.CreateFulfillment(ctx, b.ID, []fulfillment.LineQuantity{
		{LineID: b.Lines[0].ID, Quantity: 2},
	}, "", "warehouse")
	require.NoError(t, err)

	results := h.engine.BulkCancel(ctx, []string{a.ID, b.ID, c.ID, "no-such-order"}, "ops")
	require.Len(t, results, 4)

	assert.Equal(t, a.ID, results[0].OrderID)
	assert.NoError(t, results[0].Err)

	var already *statemachine.AlreadyFulfilledError
	assert.ErrorAs(t, results[1].Err, &already)

	assert.NoError(t, results[2].Err)
	assert.ErrorIs(t, results[3].Err, ErrNotFound)

	for _, id := range []string{a.ID, c.ID} {
		stored, err := h.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCanceled, stored.Status)
	}
	stored, err := h.engine.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFulfilled, stored.Status)
}

func TestBulkCancelCanceledContext(t *testing.T) {
	h := newHarness(t)

	a := h.placedOrder(t, 1)
	b := h.placedOrder(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := h.engine.BulkCancel(ctx, []string{a.ID, b.ID}, "ops")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestNotesAndMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 1)

	_, err := h.engine.AddNote(ctx, o.ID, "", "support")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	o, err = h.engine.AddNote(ctx, o.ID, "customer called", "support")
	require.NoError(t, err)
	last := o.Events[len(o.Events)-1]
	assert.Equal(t, entity.EventNoteAdded, last.Type)
	assert.Equal(t, "customer called", last.Payload["message"])

	// Notes are allowed on canceled orders too.
	o, err = h.engine.Cancel(ctx, o.ID, "ops")
	require.NoError(t, err)
	_, err = h.engine.AddNote(ctx, o.ID, "refund pending", "support")
	require.NoError(t, err)

	eventsBefore := len(o.Events) + 1
	o, err = h.engine.UpdateMetadata(ctx, o.ID, "warehouse", "east-1")
	require.NoError(t, err)
	assert.Equal(t, "east-1", o.Metadata["warehouse"])
	assert.Len(t, o.Events, eventsBefore, "metadata changes emit no events")

	o, err = h.engine.DeleteMetadata(ctx, o.ID, "warehouse")
	require.NoError(t, err)
	assert.NotContains(t, o.Metadata, "warehouse")
}

func TestEventsArePublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 10)

	_, err := h.engine.Capture(ctx, o.ID, decimal.NewFromInt(40), "USD", "ops")
	require.NoError(t, err)

	h.publisher.mu.Lock()
	defer h.publisher.mu.Unlock()
	require.Len(t, h.publisher.messages, 2)
	assert.Equal(t, entity.EventPlaced, h.publisher.messages[0].Type)
	captured := h.publisher.messages[1]
	assert.Equal(t, entity.EventCaptured, captured.Type)
	assert.Equal(t, o.ID, captured.OrderID)
	assert.Equal(t, entity.StatusUnfulfilled, captured.Status)
	assert.Equal(t, "ops", captured.Actor)
}

func TestGetByTokenAndRecentEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placedOrder(t, 1)

	byToken, err := h.engine.GetByToken(ctx, o.Token)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byToken.ID)

	_, err = h.engine.GetByToken(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.engine.AddNote(ctx, o.ID, "hello", "support")
	require.NoError(t, err)

	events, err := h.engine.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	single, err := h.engine.RecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, single, 1)
}

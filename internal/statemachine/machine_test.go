package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Additional-Code/vesta/internal/entity"
)

func draftOrder() *entity.Order {
	return &entity.Order{
		ID:     "order-1",
		Status: entity.StatusDraft,
		Lines: []*entity.OrderLine{
			{ID: "line-1", QuantityOrdered: 2},
		},
		Address: &entity.Address{StreetLine: "1 Main St", City: "Springfield", CountryCode: "US"},
	}
}

func TestValidateCompleteDraft(t *testing.T) {
	m := New()

	assert.NoError(t, m.ValidateCompleteDraft(draftOrder()))

	noLines := draftOrder()
	noLines.Lines = nil
	var invalid *InvalidDraftError
	assert.ErrorAs(t, m.ValidateCompleteDraft(noLines), &invalid)

	noAddress := draftOrder()
	noAddress.Address = nil
	assert.ErrorAs(t, m.ValidateCompleteDraft(noAddress), &invalid)

	placed := draftOrder()
	placed.Status = entity.StatusUnfulfilled
	var transition *IllegalTransitionError
	assert.ErrorAs(t, m.ValidateCompleteDraft(placed), &transition)
	assert.Equal(t, entity.StatusUnfulfilled, transition.From)
}

func TestValidateCancel(t *testing.T) {
	m := New()

	for _, status := range []entity.Status{entity.StatusDraft, entity.StatusUnfulfilled, entity.StatusPartiallyFulfilled} {
		o := &entity.Order{ID: "order-1", Status: status}
		assert.NoError(t, m.ValidateCancel(o), string(status))
	}

	fulfilled := &entity.Order{ID: "order-1", Status: entity.StatusFulfilled}
	var already *AlreadyFulfilledError
	assert.ErrorAs(t, m.ValidateCancel(fulfilled), &already)
	assert.Equal(t, "order-1", already.OrderID)

	canceled := &entity.Order{ID: "order-1", Status: entity.StatusCanceled}
	var transition *IllegalTransitionError
	assert.ErrorAs(t, m.ValidateCancel(canceled), &transition)
}

func TestValidateLedgerOp(t *testing.T) {
	m := New()

	draft := &entity.Order{Status: entity.StatusDraft}
	var transition *IllegalTransitionError
	assert.ErrorAs(t, m.ValidateLedgerOp(draft, OpCapture), &transition)
	assert.ErrorAs(t, m.ValidateLedgerOp(draft, OpRefund), &transition)

	canceled := &entity.Order{Status: entity.StatusCanceled}
	assert.NoError(t, m.ValidateLedgerOp(canceled, OpRefund))
	assert.ErrorAs(t, m.ValidateLedgerOp(canceled, OpCapture), &transition)
	assert.ErrorAs(t, m.ValidateLedgerOp(canceled, OpMarkAsPaid), &transition)

	for _, status := range []entity.Status{entity.StatusUnfulfilled, entity.StatusPartiallyFulfilled, entity.StatusFulfilled} {
		o := &entity.Order{Status: status}
		assert.NoError(t, m.ValidateLedgerOp(o, OpCapture), string(status))
		assert.NoError(t, m.ValidateLedgerOp(o, OpRefund), string(status))
	}
}

func TestValidateFulfill(t *testing.T) {
	m := New()

	assert.NoError(t, m.ValidateFulfill(&entity.Order{Status: entity.StatusUnfulfilled}))
	assert.NoError(t, m.ValidateFulfill(&entity.Order{Status: entity.StatusPartiallyFulfilled}))

	var transition *IllegalTransitionError
	for _, status := range []entity.Status{entity.StatusDraft, entity.StatusFulfilled, entity.StatusCanceled} {
		assert.ErrorAs(t, m.ValidateFulfill(&entity.Order{Status: status}), &transition, string(status))
	}
}

func TestReevaluate(t *testing.T) {
	m := New()

	o := &entity.Order{
		Status: entity.StatusUnfulfilled,
		Lines: []*entity.OrderLine{
			{ID: "line-1", QuantityOrdered: 2},
			{ID: "line-2", QuantityOrdered: 3},
		},
	}
	assert.Equal(t, entity.StatusUnfulfilled, m.Reevaluate(o))

	o.Lines[0].QuantityFulfilled = 1
	assert.Equal(t, entity.StatusPartiallyFulfilled, m.Reevaluate(o))

	o.Lines[0].QuantityFulfilled = 2
	o.Lines[1].QuantityFulfilled = 3
	assert.Equal(t, entity.StatusFulfilled, m.Reevaluate(o))

	// Terminal states stay put even with fulfilled quantities on lines.
	o.Status = entity.StatusCanceled
	assert.Equal(t, entity.StatusCanceled, m.Reevaluate(o))

	empty := &entity.Order{Status: entity.StatusUnfulfilled}
	assert.Equal(t, entity.StatusUnfulfilled, m.Reevaluate(empty))
}

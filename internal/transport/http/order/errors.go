package order

import (
	"errors"

	"github.com/Additional-Code/vesta/internal/engine"
	"github.com/Additional-Code/vesta/internal/fulfillment"
	"github.com/Additional-Code/vesta/internal/ledger"
	"github.com/Additional-Code/vesta/internal/statemachine"
	"github.com/Additional-Code/vesta/pkg/errorbank"
)

// toAppError translates engine and domain errors into the transport
// error taxonomy: validation -> bad_request, state conflicts ->
// conflict, upstream failures -> external, unknown ids -> not_found.
func toAppError(err error) *errorbank.AppError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, engine.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithCause(err))
	case errors.Is(err, engine.ErrVersionConflict):
		return errorbank.Conflict("order was modified concurrently", errorbank.WithCause(err))
	}

	var (
		validation   *engine.ValidationError
		draftOnly    *engine.DraftOnlyError
		transition   *statemachine.IllegalTransitionError
		invalidDraft *statemachine.InvalidDraftError
		fulfilled    *statemachine.AlreadyFulfilledError
		badAmount    *ledger.InvalidAmountError
		overcapture  *ledger.OvercaptureError
		overrefund   *ledger.OverrefundError
		captured     *ledger.AlreadyCapturedError
		markedPaid   *ledger.MarkedAsPaidError
		currency     *ledger.CurrencyMismatchError
		gatewayErr   *ledger.GatewayError
		badQuantity  *fulfillment.InvalidQuantityError
		overfulfill  *fulfillment.OverfulfillmentError
		fCanceled    *fulfillment.AlreadyCanceledError
		settled      *fulfillment.SettledError
	)

	switch {
	case errors.As(err, &validation):
		return errorbank.BadRequest(validation.Error())
	case errors.As(err, &badAmount):
		return errorbank.BadRequest(badAmount.Error())
	case errors.As(err, &currency):
		return errorbank.BadRequest(currency.Error(),
			errorbank.WithDetail("expected_currency", currency.Want),
		)
	case errors.As(err, &badQuantity):
		return errorbank.BadRequest(badQuantity.Error())
	case errors.As(err, &invalidDraft):
		return errorbank.Unprocessable(invalidDraft.Error())
	case errors.As(err, &draftOnly):
		return errorbank.Conflict(draftOnly.Error())
	case errors.As(err, &transition):
		return errorbank.Conflict(transition.Error(),
			errorbank.WithDetails(map[string]any{
				"from":      string(transition.From),
				"to":        string(transition.To),
				"operation": string(transition.Op),
			}),
		)
	case errors.As(err, &fulfilled):
		return errorbank.Conflict(fulfilled.Error())
	case errors.As(err, &overcapture):
		return errorbank.Conflict(overcapture.Error(),
			errorbank.WithDetail("capturable", overcapture.Available.String()),
		)
	case errors.As(err, &overrefund):
		return errorbank.Conflict(overrefund.Error(),
			errorbank.WithDetail("refundable", overrefund.Refundable.String()),
		)
	case errors.As(err, &captured):
		return errorbank.Conflict(captured.Error())
	case errors.As(err, &markedPaid):
		return errorbank.Conflict(markedPaid.Error())
	case errors.As(err, &overfulfill):
		lines := make([]map[string]any, 0, len(overfulfill.Lines))
		for _, l := range overfulfill.Lines {
			lines = append(lines, map[string]any{
				"line_id":   l.LineID,
				"requested": l.Requested,
				"remaining": l.Remaining,
			})
		}
		return errorbank.Conflict(overfulfill.Error(), errorbank.WithDetail("lines", lines))
	case errors.As(err, &fCanceled):
		return errorbank.Conflict(fCanceled.Error())
	case errors.As(err, &settled):
		return errorbank.Conflict(settled.Error())
	case errors.As(err, &gatewayErr):
		return errorbank.External("payment gateway charge failed", errorbank.WithCause(err))
	default:
		return errorbank.From(err)
	}
}

package engine

import "fmt"

// ValidationError reports malformed operation input rejected before
// any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DraftOnlyError reports a draft-editing operation on a non-draft order.
type DraftOnlyError struct {
	OrderID string
	Op      string
}

func (e *DraftOnlyError) Error() string {
	return fmt.Sprintf("order %s: %s is only allowed on draft orders", e.OrderID, e.Op)
}

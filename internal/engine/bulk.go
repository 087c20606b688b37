package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BulkResult reports the outcome of one order within a bulk operation.
type BulkResult struct {
	OrderID string
	Err     error
}

// BulkCancel cancels each order independently with bounded
// concurrency. One order's failure never aborts the others; results
// are reported per order in input order. A canceled context stops
// scheduling further orders but in-flight single-order operations run
// to completion so no aggregate is left half-committed.
func (e *Engine) BulkCancel(ctx context.Context, orderIDs []string, actor string) []BulkResult {
	ctx, span := engineTracer.Start(ctx, "Engine.BulkCancel", trace.WithAttributes(attribute.Int("orders", len(orderIDs))))
	defer span.End()

	results := make([]BulkResult, len(orderIDs))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(e.bulkConcurrency)

	for i, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(orderIDs); j++ {
				results[j] = BulkResult{OrderID: orderIDs[j], Err: err}
			}
			break
		}
		i, id := i, id
		g.Go(func() error {
			_, err := e.Cancel(gctx, id, actor)
			results[i] = BulkResult{OrderID: id, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

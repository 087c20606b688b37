package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/config"
	"github.com/Additional-Code/vesta/internal/engine"
	"github.com/Additional-Code/vesta/internal/messaging"
	"github.com/Additional-Code/vesta/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/vesta/worker/order")

// Module registers order-event worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventFeedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventFeedHandler sets up a worker handler that projects order
// lifecycle events into the activity feed log.
func NewEventFeedHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.event", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event engine.EventMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		logger.Info("order event processed",
			zap.String("order_id", event.OrderID),
			zap.Int64("seq", event.Seq),
			zap.String("type", string(event.Type)),
			zap.String("status", string(event.Status)),
			zap.String("actor", event.Actor),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}

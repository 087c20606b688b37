package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vesta/internal/database"
	"github.com/Additional-Code/vesta/internal/engine"
	"github.com/Additional-Code/vesta/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/vesta/repository/order")

// Repository persists order aggregates. Writes go through the writer
// connection inside one transaction per Save; ledger entries and
// events are insert-only so re-saving an aggregate is idempotent.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create inserts a fresh aggregate (order plus draft lines).
func (r *Repository) Create(ctx context.Context, o *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(o).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(o.Lines) > 0 {
			if _, err := tx.NewInsert().Model(&o.Lines).Exec(ctx); err != nil {
				return fmt.Errorf("insert lines: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// Load fetches the full aggregate by primary key.
func (r *Repository) Load(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Load", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return r.loadWhere(ctx, span, "id = ?", id)
}

// LoadByToken fetches the full aggregate by its external token.
func (r *Repository) LoadByToken(ctx context.Context, token string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.LoadByToken")
	defer span.End()

	return r.loadWhere(ctx, span, "token = ?", token)
}

func (r *Repository) loadWhere(ctx context.Context, span trace.Span, clause string, arg any) (*entity.Order, error) {
	o := new(entity.Order)
	err := r.reader.NewSelect().Model(o).
		Relation("Lines").
		Relation("Entries", sortBySeq).
		Relation("Events", sortBySeq).
		Relation("Fulfillments").
		Relation("Fulfillments.Lines").
		Where(clause, arg).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, engine.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return o, nil
}

func sortBySeq(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("seq ASC")
}

// Save commits the mutated aggregate under an optimistic version
// check. The caller holds the per-order lock; a conflict means an
// out-of-process writer changed the row.
func (r *Repository) Save(ctx context.Context, o *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Save", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	prevVersion := o.Version
	o.Version++

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(o).
			Column("status", "currency", "total", "marked_as_paid", "address", "metadata", "version", "updated_at").
			Where("id = ?", o.ID).
			Where("version = ?", prevVersion).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return engine.ErrVersionConflict
		}

		if err := r.saveLines(ctx, tx, o); err != nil {
			return err
		}
		if len(o.Entries) > 0 {
			if _, err := tx.NewInsert().Model(&o.Entries).
				On("CONFLICT (order_id, seq) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("insert ledger entries: %w", err)
			}
		}
		if len(o.Events) > 0 {
			if _, err := tx.NewInsert().Model(&o.Events).
				On("CONFLICT (order_id, seq) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("insert events: %w", err)
			}
		}
		return r.saveFulfillments(ctx, tx, o)
	})
	if err != nil {
		o.Version = prevVersion
		if !errors.Is(err, engine.ErrVersionConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
		}
		return err
	}
	return nil
}

func (r *Repository) saveLines(ctx context.Context, tx bun.Tx, o *entity.Order) error {
	if len(o.Lines) == 0 {
		_, err := tx.NewDelete().Model((*entity.OrderLine)(nil)).
			Where("order_id = ?", o.ID).
			Exec(ctx)
		return err
	}

	if _, err := tx.NewInsert().Model(&o.Lines).
		On("CONFLICT (id) DO UPDATE").
		Set("quantity_ordered = EXCLUDED.quantity_ordered").
		Set("quantity_fulfilled = EXCLUDED.quantity_fulfilled").
		Set("unit_price = EXCLUDED.unit_price").
		Exec(ctx); err != nil {
		return fmt.Errorf("upsert lines: %w", err)
	}

	keep := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		keep = append(keep, l.ID)
	}
	if _, err := tx.NewDelete().Model((*entity.OrderLine)(nil)).
		Where("order_id = ?", o.ID).
		Where("id NOT IN (?)", bun.In(keep)).
		Exec(ctx); err != nil {
		return fmt.Errorf("prune lines: %w", err)
	}
	return nil
}

func (r *Repository) saveFulfillments(ctx context.Context, tx bun.Tx, o *entity.Order) error {
	if len(o.Fulfillments) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&o.Fulfillments).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("tracking_number = EXCLUDED.tracking_number").
		Exec(ctx); err != nil {
		return fmt.Errorf("upsert fulfillments: %w", err)
	}
	for _, f := range o.Fulfillments {
		if len(f.Lines) == 0 {
			continue
		}
		if _, err := tx.NewInsert().Model(&f.Lines).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("insert fulfillment lines: %w", err)
		}
	}
	return nil
}

// DeleteDraft removes a draft order and its lines. Only the engine
// calls this, and only for drafts.
func (r *Repository) DeleteDraft(ctx context.Context, o *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.DeleteDraft", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.OrderLine)(nil)).
			Where("order_id = ?", o.ID).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.Order)(nil)).
			Where("id = ?", o.ID).
			Where("status = ?", entity.StatusDraft).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return engine.ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// RecentEvents returns the newest events across all orders.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]*entity.OrderEvent, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.RecentEvents", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	var events []*entity.OrderEvent
	err := r.reader.NewSelect().Model(&events).
		Order("created_at DESC").
		Order("seq DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return events, nil
}

package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/Additional-Code/vesta/internal/database"
	"github.com/Additional-Code/vesta/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Orders seeds example orders with lines if they are missing.
func (s *Seeder) Orders(ctx context.Context) error {
	now := time.Now().UTC()

	samples := []struct {
		order entity.Order
		lines []entity.OrderLine
	}{
		{
			order: entity.Order{
				ID:       "seed-order-1000",
				Token:    uuid.NewString(),
				Status:   entity.StatusDraft,
				Currency: "USD",
				Version:  1,
			},
			lines: []entity.OrderLine{
				{ID: "seed-line-1000-1", ProductRef: "SKU-TEE-BLK", QuantityOrdered: 2, UnitPrice: decimal.NewFromInt(25)},
				{ID: "seed-line-1000-2", ProductRef: "SKU-MUG-WHT", QuantityOrdered: 1, UnitPrice: decimal.NewFromInt(12)},
			},
		},
		{
			order: entity.Order{
				ID:       "seed-order-1001",
				Token:    uuid.NewString(),
				Status:   entity.StatusUnfulfilled,
				Currency: "USD",
				Version:  1,
				Address: &entity.Address{
					Name:        "Sample Buyer",
					StreetLine:  "1 Market St",
					City:        "Springfield",
					PostalCode:  "62701",
					CountryCode: "US",
				},
			},
			lines: []entity.OrderLine{
				{ID: "seed-line-1001-1", ProductRef: "SKU-HAT-RED", QuantityOrdered: 3, UnitPrice: decimal.NewFromInt(18)},
			},
		},
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, sample := range samples {
			order := sample.order
			order.CreatedAt = now
			order.UpdatedAt = now

			var total decimal.Decimal
			for _, line := range sample.lines {
				total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.QuantityOrdered))))
			}
			order.Total = total

			res, err := tx.NewInsert().Model(&order).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				continue
			}

			for _, sampleLine := range sample.lines {
				line := sampleLine
				line.OrderID = order.ID
				if _, err := tx.NewInsert().Model(&line).
					On("CONFLICT (id) DO NOTHING").
					Exec(ctx); err != nil {
					return err
				}
			}
		}

		if s.logger != nil {
			s.logger.Info("seeded orders", zap.Int("count", len(samples)))
		}
		return nil
	})
}

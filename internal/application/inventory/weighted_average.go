package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
)

// WeightedAverageCalculator costeo por promedio ponderado sobre todos los lotes con saldo.
type WeightedAverageCalculator struct{}

// Policy implementa CostingPolicy.
func (WeightedAverageCalculator) Policy() entity.ValuationPolicy { return entity.PolicyWeightedAverage }

// AverageCost costo unitario promedio a la fecha de corte (0 si no hay stock).
func (WeightedAverageCalculator) AverageCost(ctx context.Context, src StockSource, positionID string, cutoff *time.Time) (decimal.Decimal, error) {
	ps, err := src.DerivePositionStock(ctx, positionID, cutoff)
	if err != nil {
		return decimal.Zero, err
	}
	return ps.WeightedUnitCost, nil
}

// Allocate no nombra lotes: reserva una única asignación sintética contra el pool
// al costo promedio vigente, para que el kardex tenga el mismo formato en ambas políticas.
func (WeightedAverageCalculator) Allocate(ctx context.Context, src StockSource, positionID string, qty decimal.Decimal, cutoff *time.Time) ([]Allocation, error) {
	requested := domaininv.RoundQuantity(qty)
	if !requested.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	ps, err := src.DerivePositionStock(ctx, positionID, cutoff)
	if err != nil {
		return nil, err
	}
	if ps.TotalQty.LessThan(requested) {
		return nil, &domain.InsufficientStockError{PositionID: positionID, Requested: requested, Available: ps.TotalQty}
	}
	return []Allocation{{LotID: entity.PooledLotID, Quantity: requested, UnitCost: ps.WeightedUnitCost}}, nil
}

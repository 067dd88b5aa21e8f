package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
)

// FIFOAllocator consume lotes del más antiguo al más reciente.
// Es determinista: mismo libro y mismo corte producen el mismo plan.
type FIFOAllocator struct{}

// Policy implementa CostingPolicy.
func (FIFOAllocator) Policy() entity.ValuationPolicy { return entity.PolicyFIFO }

// Allocate reparte qty entre los lotes disponibles en orden (fecha de entrada, inserción).
// Si la suma disponible no alcanza devuelve InsufficientStockError sin plan parcial.
func (FIFOAllocator) Allocate(ctx context.Context, src StockSource, positionID string, qty decimal.Decimal, cutoff *time.Time) ([]Allocation, error) {
	requested := domaininv.RoundQuantity(qty)
	if !requested.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	lots, err := src.AvailableLots(ctx, positionID, cutoff)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lots, func(i, j int) bool { return lots[i].FIFOKey().Before(lots[j].FIFOKey()) })

	available := decimal.Zero
	for _, l := range lots {
		available = available.Add(l.RemainingQty)
	}
	if available.LessThan(requested) {
		return nil, &domain.InsufficientStockError{PositionID: positionID, Requested: requested, Available: available}
	}

	remaining := requested
	plan := make([]Allocation, 0, len(lots))
	for _, l := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, l.RemainingQty)
		if !take.IsPositive() {
			continue
		}
		plan = append(plan, Allocation{LotID: l.LotID, Quantity: take, UnitCost: l.UnitCost})
		remaining = remaining.Sub(take)
	}
	return plan, nil
}

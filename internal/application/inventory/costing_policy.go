package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
)

// Allocation línea de un plan de consumo: cuánto se toma de qué lote y a qué costo.
// LotID = entity.PooledLotID en la política de promedio ponderado.
type Allocation struct {
	LotID    string          `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Total costo de la línea a precisión completa.
func (a Allocation) Total() decimal.Decimal { return a.Quantity.Mul(a.UnitCost) }

// PlanTotals cantidad, costo total (precisión completa) y costo unitario resultante de un plan.
func PlanTotals(plan []Allocation) (qty, total, unitCost decimal.Decimal) {
	qty, total = decimal.Zero, decimal.Zero
	for _, a := range plan {
		qty = qty.Add(a.Quantity)
		total = total.Add(a.Total())
	}
	if qty.IsZero() {
		return qty, total, decimal.Zero
	}
	return qty, total, domaininv.RoundCost(total.Div(qty))
}

// StockSource lecturas que necesita una política para armar un plan.
// *StockEngine la implementa.
type StockSource interface {
	DerivePositionStock(ctx context.Context, positionID string, cutoff *time.Time) (*PositionStock, error)
	AvailableLots(ctx context.Context, positionID string, cutoff *time.Time) ([]LotStock, error)
}

// CostingPolicy capacidad de costeo de salidas. Cada política es una variante;
// agregar una nueva es registrar otra implementación.
type CostingPolicy interface {
	Policy() entity.ValuationPolicy
	// Allocate arma el plan de consumo sin persistir nada. Si no alcanza el stock
	// devuelve *domain.InsufficientStockError y ningún plan.
	Allocate(ctx context.Context, src StockSource, positionID string, qty decimal.Decimal, cutoff *time.Time) ([]Allocation, error)
}

// PolicyRegistry despacho cerrado por política.
type PolicyRegistry struct {
	policies map[entity.ValuationPolicy]CostingPolicy
}

// NewPolicyRegistry registra las políticas dadas.
func NewPolicyRegistry(policies ...CostingPolicy) *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[entity.ValuationPolicy]CostingPolicy, len(policies))}
	for _, p := range policies {
		r.policies[p.Policy()] = p
	}
	return r
}

// DefaultPolicyRegistry FIFO y promedio ponderado.
func DefaultPolicyRegistry() *PolicyRegistry {
	return NewPolicyRegistry(FIFOAllocator{}, WeightedAverageCalculator{})
}

// Get devuelve la implementación de la política.
func (r *PolicyRegistry) Get(policy entity.ValuationPolicy) (CostingPolicy, error) {
	p, ok := r.policies[policy]
	if !ok {
		return nil, fmt.Errorf("%w: política %q no soportada", domain.ErrInvalidInput, policy)
	}
	return p, nil
}

package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

// OutboundResult salida registrada con su costo congelado.
type OutboundResult struct {
	MovementID  string          `json:"movement_id"`
	PositionID  string          `json:"position_id"`
	Policy      string          `json:"policy"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Allocations []Allocation    `json:"allocations"`
}

// AdjustmentResult ajuste registrado. Lot solo viene en ajustes positivos.
type AdjustmentResult struct {
	MovementID  string          `json:"movement_id"`
	PositionID  string          `json:"position_id"`
	Quantity    decimal.Decimal `json:"quantity"` // con signo
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Lot         *entity.Lot     `json:"lot,omitempty"`
	Allocations []Allocation    `json:"allocations,omitempty"`
}

// LotLifecycleManager traduce líneas de comprobante en escrituras al libro.
// Cada operación corre en una transacción que primero bloquea la posición (SELECT FOR UPDATE);
// las lecturas internas usan un motor sin caché atado a esa transacción. La caché se invalida
// después del commit.
type LotLifecycleManager struct {
	txRunner TxRunner
	engine   *StockEngine
	cache    ValuationCache
	policies *PolicyRegistry
	log      *logger.Logger
	now      func() time.Time
}

// NewLotLifecycleManager construye el gestor. policies nil usa DefaultPolicyRegistry.
func NewLotLifecycleManager(txRunner TxRunner, engine *StockEngine, cache ValuationCache, policies *PolicyRegistry, log *logger.Logger) *LotLifecycleManager {
	if cache == nil {
		cache = noopCache{}
	}
	if policies == nil {
		policies = DefaultPolicyRegistry()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LotLifecycleManager{
		txRunner: txRunner,
		engine:   engine,
		cache:    cache,
		policies: policies,
		log:      log,
		now:      time.Now,
	}
}

// OnInboundLine crea el lote de una línea de compra y su movimiento ENTRADA.
// La fecha de entrada es la de emisión del comprobante (se admiten entradas con fecha pasada).
func (m *LotLifecycleManager) OnInboundLine(ctx context.Context, line entity.VoucherLine) (*entity.Lot, error) {
	if err := validateVoucherLine(line); err != nil {
		return nil, err
	}
	if !line.Quantity.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	if line.UnitCost == nil || line.UnitCost.IsNegative() {
		return nil, domain.ErrInvalidCost
	}

	var lot *entity.Lot
	err := m.txRunner.Run(ctx, func(ledger repository.LedgerRepository) error {
		pos, err := m.ensurePosition(ctx, ledger, line)
		if err != nil {
			return err
		}
		lot, _, err = m.bookLot(ctx, ledger, pos, line, entity.MovementEntrada, domaininv.RoundQuantity(line.Quantity), domaininv.RoundCost(*line.UnitCost))
		return err
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, []string{lot.PositionID}, nil)
	m.log.Info().
		Str("lot_id", lot.ID).
		Str("position_id", lot.PositionID).
		Str("voucher_id", line.VoucherID).
		Str("quantity", lot.EntryQuantity.String()).
		Str("unit_cost", lot.UnitCost.String()).
		Msg("lote creado")
	return lot, nil
}

// OnOutboundLine costea y registra una salida según la política. cutoff nil usa la fecha de emisión.
// Con stock insuficiente devuelve *domain.InsufficientStockError y no escribe nada.
func (m *LotLifecycleManager) OnOutboundLine(ctx context.Context, line entity.VoucherLine, policy entity.ValuationPolicy, cutoff *time.Time) (*OutboundResult, error) {
	if err := validateVoucherLine(line); err != nil {
		return nil, err
	}
	if !line.Quantity.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}
	impl, err := m.policies.Get(policy)
	if err != nil {
		return nil, err
	}
	if cutoff == nil {
		d := line.EmissionDate
		cutoff = &d
	}

	var res *OutboundResult
	err = m.txRunner.Run(ctx, func(ledger repository.LedgerRepository) error {
		pos, err := ledger.FindPosition(ctx, line.CompanyID, line.ProductID, line.WarehouseID)
		if err != nil {
			return err
		}
		if pos == nil {
			return domain.ErrPositionNotFound
		}
		if err := ledger.LockPosition(ctx, pos.ID); err != nil {
			return err
		}
		src := m.engine.Uncached(ledger).IssueSource()
		plan, err := impl.Allocate(ctx, src, pos.ID, line.Quantity, cutoff)
		if err != nil {
			return err
		}
		mov, qty, unitCost, total := m.consumptionMovement(line, pos.ID, entity.MovementSalida, plan, false)
		if err := ledger.CreateMovement(ctx, mov); err != nil {
			return fmt.Errorf("registrar salida: %w", err)
		}
		res = &OutboundResult{
			MovementID:  mov.ID,
			PositionID:  pos.ID,
			Policy:      string(policy),
			Quantity:    qty,
			UnitCost:    unitCost,
			TotalCost:   domaininv.RoundTotal(total),
			Allocations: plan,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, []string{res.PositionID}, allocatedLots(res.Allocations))
	m.log.Info().
		Str("movement_id", res.MovementID).
		Str("position_id", res.PositionID).
		Str("policy", res.Policy).
		Str("quantity", res.Quantity.String()).
		Str("total_cost", res.TotalCost.String()).
		Int("lots", len(res.Allocations)).
		Msg("salida registrada")
	return res, nil
}

// OnAdjustmentLine registra un AJUSTE con cantidad con signo. Un ajuste positivo crea un lote
// (sin costo informado se usa el promedio vigente); uno negativo consume según la política.
func (m *LotLifecycleManager) OnAdjustmentLine(ctx context.Context, line entity.VoucherLine, policy entity.ValuationPolicy) (*AdjustmentResult, error) {
	if err := validateVoucherLine(line); err != nil {
		return nil, err
	}
	if line.Quantity.IsZero() {
		return nil, domain.ErrInvalidQuantity
	}
	if line.UnitCost != nil && line.UnitCost.IsNegative() {
		return nil, domain.ErrInvalidCost
	}
	var impl CostingPolicy
	if line.Quantity.IsNegative() {
		var err error
		if impl, err = m.policies.Get(policy); err != nil {
			return nil, err
		}
	}

	var res *AdjustmentResult
	err := m.txRunner.Run(ctx, func(ledger repository.LedgerRepository) error {
		engine := m.engine.Uncached(ledger)

		if line.Quantity.IsPositive() {
			pos, err := m.ensurePosition(ctx, ledger, line)
			if err != nil {
				return err
			}
			var cost decimal.Decimal
			if line.UnitCost != nil {
				cost = domaininv.RoundCost(*line.UnitCost)
			} else {
				ps, err := engine.DerivePositionStock(ctx, pos.ID, nil)
				if err != nil {
					return err
				}
				cost = ps.WeightedUnitCost
			}
			qty := domaininv.RoundQuantity(line.Quantity)
			lot, movID, err := m.bookLot(ctx, ledger, pos, line, entity.MovementAjuste, qty, cost)
			if err != nil {
				return err
			}
			res = &AdjustmentResult{
				MovementID: movID,
				PositionID: pos.ID,
				Quantity:   qty,
				UnitCost:   cost,
				TotalCost:  domaininv.RoundTotal(qty.Mul(cost)),
				Lot:        lot,
			}
			return nil
		}

		pos, err := ledger.FindPosition(ctx, line.CompanyID, line.ProductID, line.WarehouseID)
		if err != nil {
			return err
		}
		if pos == nil {
			return domain.ErrPositionNotFound
		}
		if err := ledger.LockPosition(ctx, pos.ID); err != nil {
			return err
		}
		cutoff := line.EmissionDate
		plan, err := impl.Allocate(ctx, engine.IssueSource(), pos.ID, line.Quantity.Neg(), &cutoff)
		if err != nil {
			return err
		}
		mov, qty, unitCost, total := m.consumptionMovement(line, pos.ID, entity.MovementAjuste, plan, true)
		if err := ledger.CreateMovement(ctx, mov); err != nil {
			return fmt.Errorf("registrar ajuste: %w", err)
		}
		res = &AdjustmentResult{
			MovementID:  mov.ID,
			PositionID:  pos.ID,
			Quantity:    qty.Neg(),
			UnitCost:    unitCost,
			TotalCost:   domaininv.RoundTotal(total),
			Allocations: plan,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, []string{res.PositionID}, allocatedLots(res.Allocations))
	m.log.Info().
		Str("movement_id", res.MovementID).
		Str("position_id", res.PositionID).
		Str("quantity", res.Quantity.String()).
		Msg("ajuste registrado")
	return res, nil
}

// CancelMovement marca un movimiento procesado como ANULADO. Las filas nunca se borran.
// Anular una entrada cuyo lote ya tuvo consumos devuelve domain.ErrConflict.
func (m *LotLifecycleManager) CancelMovement(ctx context.Context, movementID string) error {
	var positions, lots []string
	err := m.txRunner.Run(ctx, func(ledger repository.LedgerRepository) error {
		mov, err := ledger.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if mov == nil {
			return domain.ErrMovementNotFound
		}
		if mov.State != entity.MovementProcessed {
			return fmt.Errorf("%w: el movimiento está %s", domain.ErrConflict, mov.State)
		}

		positions, lots = movementTargets(mov)
		for _, p := range positions {
			if err := ledger.LockPosition(ctx, p); err != nil {
				return err
			}
		}

		engine := m.engine.Uncached(ledger)
		var created []string
		for _, l := range mov.Lines {
			if l.LotID == "" || len(l.Consumptions) > 0 || !l.Quantity.IsPositive() || mov.Direction == entity.MovementSalida {
				continue
			}
			lot, err := ledger.GetLot(ctx, l.LotID)
			if err != nil {
				return err
			}
			if lot == nil {
				return domain.ErrLotNotFound
			}
			ls, err := engine.DeriveLotStock(ctx, lot.ID, nil)
			if err != nil {
				return err
			}
			if ls.RemainingQty.LessThan(lot.EntryQuantity) {
				return fmt.Errorf("%w: el lote %s ya tiene consumos", domain.ErrConflict, lot.ID)
			}
			created = append(created, lot.ID)
		}

		if err := ledger.SetMovementState(ctx, mov.ID, entity.MovementCancelled); err != nil {
			return err
		}
		for _, id := range created {
			if err := ledger.SetLotActive(ctx, id, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx, positions, lots)
	m.log.Info().Str("movement_id", movementID).Strs("positions", positions).Msg("movimiento anulado")
	return nil
}

// DeactivateLot saca el lote de la disponibilidad FIFO. Su saldo sigue contando en la posición.
func (m *LotLifecycleManager) DeactivateLot(ctx context.Context, lotID string) error {
	var positionID string
	err := m.txRunner.Run(ctx, func(ledger repository.LedgerRepository) error {
		lot, err := ledger.GetLot(ctx, lotID)
		if err != nil {
			return err
		}
		if lot == nil {
			return domain.ErrLotNotFound
		}
		positionID = lot.PositionID
		if err := ledger.LockPosition(ctx, lot.PositionID); err != nil {
			return err
		}
		if !lot.Active {
			return nil
		}
		return ledger.SetLotActive(ctx, lot.ID, false)
	})
	if err != nil {
		return err
	}
	m.invalidate(ctx, []string{positionID}, []string{lotID})
	return nil
}

// ensurePosition obtiene o crea la posición de la línea y la bloquea.
func (m *LotLifecycleManager) ensurePosition(ctx context.Context, ledger repository.LedgerRepository, line entity.VoucherLine) (*entity.Position, error) {
	pos, err := ledger.FindPosition(ctx, line.CompanyID, line.ProductID, line.WarehouseID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &entity.Position{
			ID:          uuid.New().String(),
			CompanyID:   line.CompanyID,
			ProductID:   line.ProductID,
			WarehouseID: line.WarehouseID,
			CreatedAt:   m.now(),
		}
		if err := ledger.CreatePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("crear posición: %w", err)
		}
	}
	if err := ledger.LockPosition(ctx, pos.ID); err != nil {
		return nil, err
	}
	return pos, nil
}

// bookLot crea el lote y el movimiento de una sola línea que lo referencia.
func (m *LotLifecycleManager) bookLot(ctx context.Context, ledger repository.LedgerRepository, pos *entity.Position, line entity.VoucherLine, dir entity.MovementDirection, qty, cost decimal.Decimal) (*entity.Lot, string, error) {
	now := m.now()
	lot := &entity.Lot{
		ID:              uuid.New().String(),
		PositionID:      pos.ID,
		EntryDate:       line.EmissionDate,
		EntryQuantity:   qty,
		UnitCost:        cost,
		ExpiryDate:      line.ExpiryDate,
		Code:            line.LotCode,
		Active:          true,
		SourceVoucherID: line.VoucherID,
		CreatedAt:       now,
	}
	if err := ledger.CreateLot(ctx, lot); err != nil {
		return nil, "", fmt.Errorf("crear lote: %w", err)
	}

	movID := uuid.New().String()
	mov := &entity.Movement{
		ID:        movID,
		CompanyID: line.CompanyID,
		Direction: dir,
		Date:      line.EmissionDate,
		VoucherID: line.VoucherID,
		State:     entity.MovementProcessed,
		CreatedAt: now,
		CreatedBy: line.UserID,
		Lines: []entity.MovementLine{{
			ID:         uuid.New().String(),
			MovementID: movID,
			PositionID: pos.ID,
			LotID:      lot.ID,
			Quantity:   qty,
			UnitCost:   cost,
		}},
	}
	if err := ledger.CreateMovement(ctx, mov); err != nil {
		return nil, "", fmt.Errorf("registrar entrada: %w", err)
	}
	return lot, movID, nil
}

// consumptionMovement arma un movimiento de una línea con un consumo por asignación.
// negative deja la cantidad de la línea con signo negativo (ajustes).
func (m *LotLifecycleManager) consumptionMovement(line entity.VoucherLine, positionID string, dir entity.MovementDirection, plan []Allocation, negative bool) (mov *entity.Movement, qty, unitCost, total decimal.Decimal) {
	qty, total, unitCost = PlanTotals(plan)
	movID := uuid.New().String()
	lineID := uuid.New().String()
	cons := make([]entity.LotConsumption, 0, len(plan))
	for _, a := range plan {
		cons = append(cons, entity.LotConsumption{
			ID:       uuid.New().String(),
			LineID:   lineID,
			LotID:    a.LotID,
			Quantity: a.Quantity,
			UnitCost: a.UnitCost,
		})
	}
	lineQty := qty
	if negative {
		lineQty = qty.Neg()
	}
	mov = &entity.Movement{
		ID:        movID,
		CompanyID: line.CompanyID,
		Direction: dir,
		Date:      line.EmissionDate,
		VoucherID: line.VoucherID,
		State:     entity.MovementProcessed,
		CreatedAt: m.now(),
		CreatedBy: line.UserID,
		Lines: []entity.MovementLine{{
			ID:           lineID,
			MovementID:   movID,
			PositionID:   positionID,
			Quantity:     lineQty,
			UnitCost:     unitCost,
			Consumptions: cons,
		}},
	}
	return mov, qty, unitCost, total
}

func (m *LotLifecycleManager) invalidate(ctx context.Context, positions, lots []string) {
	if err := m.cache.InvalidateMany(ctx, positions); err != nil {
		m.log.Error().Err(err).Strs("positions", positions).Msg("no se pudo invalidar la caché de posiciones")
	}
	for _, id := range lots {
		if err := m.cache.InvalidateLot(ctx, id); err != nil {
			m.log.Error().Err(err).Str("lot_id", id).Msg("no se pudo invalidar la caché del lote")
		}
	}
	m.log.Debug().Strs("positions", positions).Strs("lots", lots).Msg("caché invalidada")
}

func validateVoucherLine(line entity.VoucherLine) error {
	if line.CompanyID == "" || line.ProductID == "" || line.WarehouseID == "" {
		return fmt.Errorf("%w: empresa, producto y bodega son obligatorios", domain.ErrInvalidInput)
	}
	if line.EmissionDate.IsZero() {
		return fmt.Errorf("%w: fecha de emisión obligatoria", domain.ErrInvalidInput)
	}
	return nil
}

func allocatedLots(plan []Allocation) []string {
	out := make([]string, 0, len(plan))
	for _, a := range plan {
		if a.LotID != entity.PooledLotID {
			out = append(out, a.LotID)
		}
	}
	return out
}

// movementTargets posiciones (ordenadas, para bloquear siempre en el mismo orden) y lotes tocados.
func movementTargets(mov *entity.Movement) (positions, lots []string) {
	seenPos := make(map[string]bool)
	seenLot := make(map[string]bool)
	for _, l := range mov.Lines {
		if !seenPos[l.PositionID] {
			seenPos[l.PositionID] = true
			positions = append(positions, l.PositionID)
		}
		if l.LotID != "" && !seenLot[l.LotID] {
			seenLot[l.LotID] = true
			lots = append(lots, l.LotID)
		}
		for _, c := range l.Consumptions {
			if !c.IsPooled() && !seenLot[c.LotID] {
				seenLot[c.LotID] = true
				lots = append(lots, c.LotID)
			}
		}
	}
	sort.Strings(positions)
	return positions, lots
}

// issueSource limita lo disponible en una salida con fecha pasada para que las salidas posteriores
// ya registradas sigan cubiertas. En total no entrega más que el menor saldo de la posición desde
// el corte; por lote, no más que el mínimo entre el saldo al corte y el actual.
type issueSource struct {
	engine *StockEngine
}

func (s issueSource) AvailableLots(ctx context.Context, positionID string, cutoff *time.Time) ([]LotStock, error) {
	atCutoff, err := s.engine.AvailableLots(ctx, positionID, cutoff)
	if err != nil || cutoff == nil {
		return atCutoff, err
	}
	current, err := s.engine.AvailableLots(ctx, positionID, nil)
	if err != nil {
		return nil, err
	}
	budget, err := s.engine.LowestQuantitySince(ctx, positionID, *cutoff)
	if err != nil {
		return nil, err
	}
	now := make(map[string]decimal.Decimal, len(current))
	for _, l := range current {
		now[l.LotID] = l.RemainingQty
	}
	out := make([]LotStock, 0, len(atCutoff))
	for _, l := range atCutoff {
		rem, ok := now[l.LotID]
		if !ok {
			continue
		}
		l.RemainingQty = decimal.Min(l.RemainingQty, rem, budget)
		if !l.RemainingQty.IsPositive() {
			continue
		}
		budget = budget.Sub(l.RemainingQty)
		out = append(out, l)
	}
	return out, nil
}

func (s issueSource) DerivePositionStock(ctx context.Context, positionID string, cutoff *time.Time) (*PositionStock, error) {
	atCutoff, err := s.engine.DerivePositionStock(ctx, positionID, cutoff)
	if err != nil || cutoff == nil {
		return atCutoff, err
	}
	low, err := s.engine.LowestQuantitySince(ctx, positionID, *cutoff)
	if err != nil {
		return nil, err
	}
	out := *atCutoff
	out.TotalQty = decimal.Min(out.TotalQty, low)
	return &out, nil
}

package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

// KardexEvent una línea de la tarjeta de inventario. Quantity y LineCost llevan signo
// (negativos en salidas).
type KardexEvent struct {
	MovementID   string                   `json:"movement_id"`
	Date         time.Time                `json:"date"`
	Direction    entity.MovementDirection `json:"direction"`
	VoucherID    string                   `json:"voucher_id,omitempty"`
	LotID        string                   `json:"lot_id,omitempty"`
	Quantity     decimal.Decimal          `json:"quantity"`
	UnitCost     decimal.Decimal          `json:"unit_cost"`
	LineCost     decimal.Decimal          `json:"line_cost"`
	RunningQty   decimal.Decimal          `json:"running_qty"`
	RunningValue decimal.Decimal          `json:"running_value"`
	Consumptions []Allocation             `json:"consumptions,omitempty"`
}

// KardexReport tarjeta de inventario de una posición en una ventana de fechas.
type KardexReport struct {
	PositionID    string                 `json:"position_id"`
	CompanyID     string                 `json:"company_id"`
	ProductID     string                 `json:"product_id"`
	WarehouseID   string                 `json:"warehouse_id"`
	Policy        entity.ValuationPolicy `json:"policy"`
	From          time.Time              `json:"from"`
	To            time.Time              `json:"to"`
	OpeningQty    decimal.Decimal        `json:"opening_qty"`
	OpeningValue  decimal.Decimal        `json:"opening_value"`
	Events        []KardexEvent          `json:"events"`
	ClosingQty    decimal.Decimal        `json:"closing_qty"`
	ClosingValue  decimal.Decimal        `json:"closing_value"`
	TotalInQty    decimal.Decimal        `json:"total_in_qty"`
	TotalInValue  decimal.Decimal        `json:"total_in_value"`
	TotalOutQty   decimal.Decimal        `json:"total_out_qty"`
	TotalOutValue decimal.Decimal        `json:"total_out_value"`
}

// KardexBuilder arma la tarjeta en una sola pasada sobre las líneas de la ventana.
type KardexBuilder struct {
	ledger repository.LedgerRepository
	engine *StockEngine
}

// NewKardexBuilder construye el generador.
func NewKardexBuilder(ledger repository.LedgerRepository, engine *StockEngine) *KardexBuilder {
	return &KardexBuilder{ledger: ledger, engine: engine}
}

// Build saldo inicial = stock derivado al día anterior a from; los saldos corridos se calculan
// incrementalmente. Los valores se redondean a 2 decimales solo al presentarlos.
func (b *KardexBuilder) Build(ctx context.Context, positionID string, policy entity.ValuationPolicy, from, to time.Time) (*KardexReport, error) {
	from, to = domaininv.StartOfDay(from), domaininv.StartOfDay(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: la fecha inicial es posterior a la final", domain.ErrInvalidInput)
	}

	before := domaininv.DayBefore(from)
	opening, err := b.engine.DerivePositionStock(ctx, positionID, &before)
	if err != nil {
		return nil, err
	}

	end := domaininv.EndOfDay(to)
	lines, err := b.ledger.ListLines(ctx, repository.LineFilter{PositionID: positionID, From: &from, To: &end})
	if err != nil {
		return nil, fmt.Errorf("kardex: %w", err)
	}
	domaininv.SortLedgerLines(lines)

	report := &KardexReport{
		PositionID:    opening.PositionID,
		CompanyID:     opening.CompanyID,
		ProductID:     opening.ProductID,
		WarehouseID:   opening.WarehouseID,
		Policy:        policy,
		From:          from,
		To:            to,
		OpeningQty:    opening.TotalQty,
		OpeningValue:  domaininv.RoundTotal(opening.ExactValue()),
		Events:        make([]KardexEvent, 0, len(lines)),
		TotalInQty:    decimal.Zero,
		TotalInValue:  decimal.Zero,
		TotalOutQty:   decimal.Zero,
		TotalOutValue: decimal.Zero,
	}

	runQty := opening.TotalQty
	runValue := opening.ExactValue()
	inValue, outValue := decimal.Zero, decimal.Zero
	for _, ll := range lines {
		qty := ll.SignedQuantity()
		cost := lineCost(ll.Line)
		if qty.IsNegative() {
			cost = cost.Neg()
		}
		runQty = runQty.Add(qty)
		runValue = runValue.Add(cost)

		ev := KardexEvent{
			MovementID:   ll.MovementID,
			Date:         ll.Date,
			Direction:    ll.Direction,
			VoucherID:    ll.VoucherID,
			LotID:        ll.Line.LotID,
			Quantity:     qty,
			UnitCost:     ll.Line.UnitCost,
			LineCost:     domaininv.RoundTotal(cost),
			RunningQty:   domaininv.RoundQuantity(runQty),
			RunningValue: domaininv.RoundTotal(runValue),
		}
		if ll.Direction == entity.MovementSalida && policy == entity.PolicyFIFO {
			ev.Consumptions = make([]Allocation, 0, len(ll.Line.Consumptions))
			for _, c := range ll.Line.Consumptions {
				ev.Consumptions = append(ev.Consumptions, Allocation{LotID: c.LotID, Quantity: c.Quantity, UnitCost: c.UnitCost})
			}
		}
		report.Events = append(report.Events, ev)

		if qty.IsPositive() {
			report.TotalInQty = report.TotalInQty.Add(qty)
			inValue = inValue.Add(cost)
		} else {
			report.TotalOutQty = report.TotalOutQty.Add(qty.Neg())
			outValue = outValue.Add(cost.Neg())
		}
	}

	report.ClosingQty = domaininv.RoundQuantity(runQty)
	report.ClosingValue = domaininv.RoundTotal(runValue)
	report.TotalInValue = domaininv.RoundTotal(inValue)
	report.TotalOutValue = domaininv.RoundTotal(outValue)
	return report, nil
}

// lineCost costo absoluto de la línea: suma de consumos si los hay, si no cantidad × costo.
func lineCost(l entity.MovementLine) decimal.Decimal {
	if len(l.Consumptions) == 0 {
		return l.Quantity.Abs().Mul(l.UnitCost)
	}
	total := decimal.Zero
	for _, c := range l.Consumptions {
		total = total.Add(c.Quantity.Mul(c.UnitCost))
	}
	return total
}

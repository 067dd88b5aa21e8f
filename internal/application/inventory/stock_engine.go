package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

// LotStock saldo derivado de un lote a una fecha de corte.
type LotStock struct {
	LotID        string          `json:"lot_id"`
	PositionID   string          `json:"position_id"`
	Seq          int64           `json:"seq"`
	Code         string          `json:"code,omitempty"`
	EntryDate    time.Time       `json:"entry_date"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	EntryQty     decimal.Decimal `json:"entry_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Active       bool            `json:"active"`
}

// FIFOKey clave de orden FIFO, la misma que usa entity.Lot.
func (l LotStock) FIFOKey() entity.FIFOKey {
	return entity.FIFOKey{EntryDate: l.EntryDate, Seq: l.Seq, ID: l.LotID}
}

// PositionStock cantidad y costo derivados de una posición a una fecha de corte.
type PositionStock struct {
	PositionID       string          `json:"position_id"`
	CompanyID        string          `json:"company_id"`
	ProductID        string          `json:"product_id"`
	WarehouseID      string          `json:"warehouse_id"`
	Cutoff           *time.Time      `json:"cutoff,omitempty"`
	TotalQty         decimal.Decimal `json:"total_qty"`
	WeightedUnitCost decimal.Decimal `json:"weighted_unit_cost"`
	TotalValue       decimal.Decimal `json:"total_value"`
	Lots             []LotStock      `json:"lots"` // solo lotes con saldo > 0, orden FIFO
	Clamped          bool            `json:"clamped"`
}

// ExactValue Σ(saldo × costo) a precisión completa (TotalValue está redondeado a 2 decimales).
func (p *PositionStock) ExactValue() decimal.Decimal {
	v := decimal.Zero
	for _, l := range p.Lots {
		v = v.Add(l.RemainingQty.Mul(l.UnitCost))
	}
	return v
}

// StockEngine deriva existencias reproduciendo el libro; consulta la caché antes de leerlo.
type StockEngine struct {
	ledger repository.LedgerRepository
	cache  ValuationCache
	ttl    TTLClasses
	log    *logger.Logger
}

// NewStockEngine construye el motor. cache puede ser nil (sin memoización); log puede ser nil.
func NewStockEngine(ledger repository.LedgerRepository, cache ValuationCache, ttl TTLClasses, log *logger.Logger) *StockEngine {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StockEngine{ledger: ledger, cache: cache, ttl: ttl, log: log}
}

// Uncached devuelve el mismo motor atado a otro libro (p. ej. el de una transacción) y sin caché.
func (e *StockEngine) Uncached(ledger repository.LedgerRepository) *StockEngine {
	return &StockEngine{ledger: ledger, cache: noopCache{}, ttl: e.ttl, log: e.log}
}

// DeriveLotStock saldo de un lote a la fecha de corte (nil = a hoy).
func (e *StockEngine) DeriveLotStock(ctx context.Context, lotID string, cutoff *time.Time) (*LotStock, error) {
	key := CacheKey{Kind: KindLotStock, ID: lotID, Cutoff: cutoff}
	var cached LotStock
	if e.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	lot, err := e.ledger.GetLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("derivar lote: %w", err)
	}
	if lot == nil {
		return nil, domain.ErrLotNotFound
	}
	res, err := e.replay(ctx, lot.PositionID, cutoff)
	if err != nil {
		return nil, err
	}
	out := lotStockOf(lot, decimal.Zero)
	if b, ok := res.Balance(lot.ID); ok {
		out.RemainingQty = domaininv.RoundQuantity(b.Remaining)
	}

	key.PositionID = lot.PositionID
	e.store(ctx, key, out, e.ttl.Short)
	return &out, nil
}

// DerivePositionStock cantidad total, costo promedio ponderado y desglose por lote.
// Una posición sin lotes es un estado válido (stock cero), no un error.
func (e *StockEngine) DerivePositionStock(ctx context.Context, positionID string, cutoff *time.Time) (*PositionStock, error) {
	key := CacheKey{Kind: KindPositionStock, ID: positionID, Cutoff: cutoff, PositionID: positionID}
	var cached PositionStock
	if e.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	pos, err := e.ledger.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("derivar posición: %w", err)
	}
	if pos == nil {
		return nil, domain.ErrPositionNotFound
	}
	res, err := e.replay(ctx, pos.ID, cutoff)
	if err != nil {
		return nil, err
	}

	qty, value, unitCost := domaininv.WeightedAverage(res.Portions())
	out := PositionStock{
		PositionID:       pos.ID,
		CompanyID:        pos.CompanyID,
		ProductID:        pos.ProductID,
		WarehouseID:      pos.WarehouseID,
		Cutoff:           cutoff,
		TotalQty:         domaininv.RoundQuantity(qty),
		WeightedUnitCost: unitCost,
		TotalValue:       domaininv.RoundTotal(value),
		Lots:             make([]LotStock, 0, len(res.Balances)),
		Clamped:          res.Clamped(),
	}
	for _, b := range res.Balances {
		if b.Remaining.IsPositive() {
			out.Lots = append(out.Lots, lotStockOf(b.Lot, b.Remaining))
		}
	}

	e.store(ctx, key, out, e.ttl.Medium)
	return &out, nil
}

// AvailableLots lotes activos con saldo > 0 en orden FIFO.
func (e *StockEngine) AvailableLots(ctx context.Context, positionID string, cutoff *time.Time) ([]LotStock, error) {
	key := CacheKey{Kind: KindAvailableLots, ID: positionID, Cutoff: cutoff, PositionID: positionID}
	var cached []LotStock
	if e.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	ps, err := e.DerivePositionStock(ctx, positionID, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]LotStock, 0, len(ps.Lots))
	for _, l := range ps.Lots {
		if l.Active && l.RemainingQty.IsPositive() {
			out = append(out, l)
		}
	}

	e.store(ctx, key, out, e.ttl.Long)
	return out, nil
}

// LowestQuantitySince menor saldo total de la posición desde el cierre del día since hasta hoy.
// Sin caché: siempre reproduce el libro completo.
func (e *StockEngine) LowestQuantitySince(ctx context.Context, positionID string, since time.Time) (decimal.Decimal, error) {
	lots, err := e.ledger.ListLotsByPosition(ctx, positionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("listar lotes: %w", err)
	}
	lines, err := e.ledger.ListLines(ctx, repository.LineFilter{PositionID: positionID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("listar líneas: %w", err)
	}
	return domaininv.RoundQuantity(domaininv.LowestQuantitySince(lots, lines, since)), nil
}

// IssueSource fuente de disponibilidad para salidas, con el mismo límite que aplican las
// salidas con fecha pasada del gestor de movimientos.
func (e *StockEngine) IssueSource() StockSource {
	return issueSource{engine: e}
}

func (e *StockEngine) replay(ctx context.Context, positionID string, cutoff *time.Time) (domaininv.ReplayResult, error) {
	lots, err := e.ledger.ListLotsByPosition(ctx, positionID)
	if err != nil {
		return domaininv.ReplayResult{}, fmt.Errorf("listar lotes: %w", err)
	}
	lines, err := e.ledger.ListLines(ctx, repository.LineFilter{
		PositionID: positionID,
		To:         domaininv.UpperBound(cutoff),
	})
	if err != nil {
		return domaininv.ReplayResult{}, fmt.Errorf("listar líneas: %w", err)
	}
	res := domaininv.ReplayPosition(lots, lines)
	for _, ev := range res.Integrity {
		e.log.Warn().
			Str("position_id", positionID).
			Str("lot_id", ev.LotID).
			Str("movement_id", ev.MovementID).
			Str("kind", string(ev.Kind)).
			Str("quantity", ev.Quantity.String()).
			Str("cutoff", domaininv.CutoffLabel(cutoff)).
			Msg("inconsistencia en el libro de inventario")
	}
	return res, nil
}

func (e *StockEngine) fromCache(ctx context.Context, key CacheKey, dst any) bool {
	data, ok := e.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		e.log.Warn().Err(err).Str("key", key.String()).Msg("entrada de caché ilegible, se ignora")
		return false
	}
	return true
}

func (e *StockEngine) store(ctx context.Context, key CacheKey, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key.String()).Msg("no se pudo serializar para caché")
		return
	}
	if err := e.cache.Set(ctx, key, data, ttl); err != nil {
		e.log.Warn().Err(err).Str("key", key.String()).Msg("no se pudo escribir en caché")
	}
}

func lotStockOf(lot *entity.Lot, remaining decimal.Decimal) LotStock {
	return LotStock{
		LotID:        lot.ID,
		PositionID:   lot.PositionID,
		Seq:          lot.Seq,
		Code:         lot.Code,
		EntryDate:    lot.EntryDate,
		ExpiryDate:   lot.ExpiryDate,
		EntryQty:     lot.EntryQuantity,
		RemainingQty: domaininv.RoundQuantity(remaining),
		UnitCost:     lot.UnitCost,
		Active:       lot.Active,
	}
}

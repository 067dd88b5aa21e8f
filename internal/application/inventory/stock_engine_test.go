package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
)

func TestStockEngine_SaldoAFechaDeCorte(t *testing.T) {
	f := newFixture(t)
	a, b := f.twoLots(t)

	before := f.stock(t, a.PositionID, datePtr("2024-01-05"))
	assert.True(t, before.TotalQty.Equal(dec("10")))
	assert.True(t, before.WeightedUnitCost.Equal(dec("2")))
	require.Len(t, before.Lots, 1)
	assert.Equal(t, a.ID, before.Lots[0].LotID)

	now := f.stock(t, a.PositionID, nil)
	assert.True(t, now.TotalQty.Equal(dec("20")))
	assert.True(t, now.TotalValue.Equal(dec("50")))
	assert.True(t, now.WeightedUnitCost.Equal(dec("2.5")))
	require.Len(t, now.Lots, 2)
	assert.Equal(t, a.ID, now.Lots[0].LotID, "orden FIFO")
	assert.Equal(t, b.ID, now.Lots[1].LotID)
}

func TestStockEngine_SaldoDeLote(t *testing.T) {
	f := newFixture(t)
	a, _ := f.twoLots(t)
	_, err := f.outbound("2024-02-01", "4", entity.PolicyFIFO)
	require.NoError(t, err)

	ls, err := f.engine.DeriveLotStock(f.ctx, a.ID, nil)
	require.NoError(t, err)
	assert.True(t, ls.RemainingQty.Equal(dec("6")))
	assert.True(t, ls.EntryQty.Equal(dec("10")))

	ls, err = f.engine.DeriveLotStock(f.ctx, a.ID, datePtr("2024-01-31"))
	require.NoError(t, err)
	assert.True(t, ls.RemainingQty.Equal(dec("10")), "la salida es posterior al corte")
}

func TestStockEngine_NoEncontrados(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DerivePositionStock(f.ctx, "no-existe", nil)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.DeriveLotStock(f.ctx, "no-existe", nil)
	assert.ErrorIs(t, err, domain.ErrLotNotFound)
}

func TestStockEngine_SobreconsumoNuncaDaNegativo(t *testing.T) {
	f := newFixture(t)
	a := f.inbound(t, "2024-01-01", "10", "2")

	// escritura directa al libro que consume más de lo que el lote tiene
	require.NoError(t, f.ledger.CreateMovement(f.ctx, &entity.Movement{
		CompanyID: testCompany,
		Direction: entity.MovementSalida,
		Date:      date("2024-01-02"),
		Lines: []entity.MovementLine{{
			PositionID:   a.PositionID,
			Quantity:     dec("15"),
			UnitCost:     dec("2"),
			Consumptions: []entity.LotConsumption{{LotID: a.ID, Quantity: dec("15"), UnitCost: dec("2")}},
		}},
	}))
	require.NoError(t, f.cache.Invalidate(f.ctx, a.PositionID))

	ps := f.stock(t, a.PositionID, nil)
	assert.True(t, ps.TotalQty.IsZero())
	assert.True(t, ps.Clamped)
	assert.Empty(t, ps.Lots)
}

func TestStockEngine_ConservacionDeCantidades(t *testing.T) {
	f := newFixture(t)
	a, _ := f.twoLots(t)
	f.inbound(t, "2024-01-20", "7", "4")

	_, err := f.outbound("2024-02-01", "12", entity.PolicyFIFO)
	require.NoError(t, err)
	_, err = f.outbound("2024-02-02", "5", entity.PolicyWeightedAverage)
	require.NoError(t, err)
	_, err = f.lifecycle.OnAdjustmentLine(f.ctx, line("2024-02-03", "-3"), entity.PolicyFIFO)
	require.NoError(t, err)
	_, err = f.lifecycle.OnAdjustmentLine(f.ctx, line("2024-02-04", "2"), entity.PolicyFIFO)
	require.NoError(t, err)

	ps := f.stock(t, a.PositionID, nil)
	// 27 entradas - 12 - 5 - 3 + 2
	assert.True(t, ps.TotalQty.Equal(dec("9")), "qty %s", ps.TotalQty)
	assert.False(t, ps.Clamped)
	for _, l := range ps.Lots {
		assert.True(t, l.RemainingQty.IsPositive())
		assert.True(t, l.RemainingQty.LessThanOrEqual(l.EntryQty))
	}
}

func TestStockEngine_CacheSinInvalidarSirveDatoViejo(t *testing.T) {
	f := newFixture(t)
	a := f.inbound(t, "2024-01-01", "10", "2")

	first := f.stock(t, a.PositionID, nil)
	require.True(t, first.TotalQty.Equal(dec("10")))

	// escritura que no pasa por el gestor de lotes: nadie invalida
	extra := &entity.Lot{PositionID: a.PositionID, EntryDate: date("2024-01-02"), EntryQuantity: dec("5"), UnitCost: dec("2"), Active: true}
	require.NoError(t, f.ledger.CreateLot(f.ctx, extra))
	require.NoError(t, f.ledger.CreateMovement(f.ctx, &entity.Movement{
		CompanyID: testCompany,
		Direction: entity.MovementEntrada,
		Date:      extra.EntryDate,
		Lines:     []entity.MovementLine{{PositionID: a.PositionID, LotID: extra.ID, Quantity: dec("5"), UnitCost: dec("2")}},
	}))

	stale := f.stock(t, a.PositionID, nil)
	assert.True(t, stale.TotalQty.Equal(dec("10")), "la caché devuelve el valor memorizado")

	require.NoError(t, f.cache.Invalidate(f.ctx, a.PositionID))
	fresh := f.stock(t, a.PositionID, nil)
	assert.True(t, fresh.TotalQty.Equal(dec("15")))
}

func TestStockEngine_EscriturasDelGestorInvalidan(t *testing.T) {
	f := newFixture(t)
	a := f.inbound(t, "2024-01-01", "10", "2")
	require.True(t, f.stock(t, a.PositionID, nil).TotalQty.Equal(dec("10")))

	f.inbound(t, "2024-01-02", "5", "2")
	assert.True(t, f.stock(t, a.PositionID, nil).TotalQty.Equal(dec("15")))
}

func TestStockEngine_LoteInactivoCuentaPeroNoSeAsigna(t *testing.T) {
	f := newFixture(t)
	a, b := f.twoLots(t)
	require.NoError(t, f.lifecycle.DeactivateLot(f.ctx, a.ID))

	ps := f.stock(t, a.PositionID, nil)
	assert.True(t, ps.TotalQty.Equal(dec("20")))

	avail, err := f.engine.AvailableLots(f.ctx, a.PositionID, nil)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, b.ID, avail[0].LotID)

	res, err := f.outbound("2024-02-01", "5", entity.PolicyFIFO)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, b.ID, res.Allocations[0].LotID)
}

func TestLotStock_FIFOKeyCoincideConElLote(t *testing.T) {
	f := newFixture(t)
	a, b := f.twoLots(t)

	now := f.stock(t, a.PositionID, nil)
	require.Len(t, now.Lots, 2)

	for i, l := range []*entity.Lot{a, b} {
		key := now.Lots[i].FIFOKey()
		assert.Equal(t, l.ID, key.ID)
		assert.Equal(t, l.Seq, key.Seq)
		assert.True(t, l.EntryDate.Equal(key.EntryDate))
	}
	assert.True(t, now.Lots[0].FIFOKey().Before(now.Lots[1].FIFOKey()))
	assert.Equal(t, a.FIFOBefore(b), now.Lots[0].FIFOKey().Before(now.Lots[1].FIFOKey()))
}

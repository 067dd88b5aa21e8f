package inventory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func lot(id string, seq int64, date, qty, cost string) *entity.Lot {
	return &entity.Lot{ID: id, Seq: seq, PositionID: "pos", EntryDate: day(date), EntryQuantity: d(qty), UnitCost: d(cost), Active: true}
}

func entry(movID string, seq int64, l *entity.Lot) entity.LedgerLine {
	return entity.LedgerLine{
		MovementID:  movID,
		MovementSeq: seq,
		Direction:   entity.MovementEntrada,
		Date:        l.EntryDate,
		Line:        entity.MovementLine{ID: movID + "-1", PositionID: "pos", LotID: l.ID, Quantity: l.EntryQuantity, UnitCost: l.UnitCost},
	}
}

func sale(movID string, seq int64, date string, consumptions ...entity.LotConsumption) entity.LedgerLine {
	qty := decimal.Zero
	for _, c := range consumptions {
		qty = qty.Add(c.Quantity)
	}
	return entity.LedgerLine{
		MovementID:  movID,
		MovementSeq: seq,
		Direction:   entity.MovementSalida,
		Date:        day(date),
		Line:        entity.MovementLine{ID: movID + "-1", PositionID: "pos", Quantity: qty, Consumptions: consumptions},
	}
}

func remaining(t *testing.T, res inventory.ReplayResult, lotID string) decimal.Decimal {
	t.Helper()
	b, ok := res.Balance(lotID)
	require.True(t, ok, "lote %s", lotID)
	return b.Remaining
}

func TestReplayPosition_ConsumosFIFO(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "10", "2")
	b := lot("B", 2, "2024-01-10", "10", "3")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		entry("m2", 2, b),
		sale("m3", 3, "2024-02-01",
			entity.LotConsumption{LotID: "A", Quantity: d("10"), UnitCost: d("2")},
			entity.LotConsumption{LotID: "B", Quantity: d("5"), UnitCost: d("3")}),
	}

	res := inventory.ReplayPosition([]*entity.Lot{b, a}, lines)

	require.Len(t, res.Balances, 2)
	assert.Equal(t, "A", res.Balances[0].Lot.ID, "orden FIFO")
	assert.True(t, remaining(t, res, "A").IsZero())
	assert.True(t, remaining(t, res, "B").Equal(d("5")))
	assert.Empty(t, res.Integrity)
	assert.False(t, res.Clamped())

	qty, value, cost := inventory.WeightedAverage(res.Portions())
	assert.True(t, qty.Equal(d("5")))
	assert.True(t, value.Equal(d("15")))
	assert.True(t, cost.Equal(d("3")))
}

func TestReplayPosition_OrdenDeEntradaIrrelevante(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "10", "2")
	b := lot("B", 2, "2024-01-10", "10", "3")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		entry("m2", 2, b),
		sale("m3", 3, "2024-02-01", entity.LotConsumption{LotID: "A", Quantity: d("4"), UnitCost: d("2")}),
	}
	reversed := []entity.LedgerLine{lines[2], lines[1], lines[0]}

	r1 := inventory.ReplayPosition([]*entity.Lot{a, b}, lines)
	r2 := inventory.ReplayPosition([]*entity.Lot{b, a}, reversed)

	for _, id := range []string{"A", "B"} {
		assert.True(t, remaining(t, r1, id).Equal(remaining(t, r2, id)), "lote %s", id)
	}
	assert.Equal(t, "m3", reversed[0].MovementID, "no modifica el slice recibido")
}

func TestReplayPosition_SobreconsumoSeFijaEnCero(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "3", "2")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		sale("m2", 2, "2024-01-02", entity.LotConsumption{LotID: "A", Quantity: d("5"), UnitCost: d("2")}),
	}

	res := inventory.ReplayPosition([]*entity.Lot{a}, lines)

	assert.True(t, remaining(t, res, "A").IsZero())
	require.Len(t, res.Integrity, 1)
	assert.Equal(t, inventory.IntegrityClamp, res.Integrity[0].Kind)
	assert.True(t, res.Integrity[0].Quantity.Equal(d("2")))
	assert.True(t, res.Clamped())
}

func TestReplayPosition_LoteAjenoEsHuerfano(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "3", "2")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		sale("m2", 2, "2024-01-02", entity.LotConsumption{LotID: "X", Quantity: d("1"), UnitCost: d("2")}),
	}

	res := inventory.ReplayPosition([]*entity.Lot{a}, lines)

	assert.True(t, remaining(t, res, "A").Equal(d("3")))
	require.Len(t, res.Integrity, 1)
	assert.Equal(t, inventory.IntegrityOrphan, res.Integrity[0].Kind)
	assert.Equal(t, "X", res.Integrity[0].LotID)
	assert.False(t, res.Clamped())
}

func TestReplayPosition_PoolConservaCostoPromedio(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "10", "2")
	b := lot("B", 2, "2024-01-10", "10", "3")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		entry("m2", 2, b),
		sale("m3", 3, "2024-02-01", entity.LotConsumption{LotID: entity.PooledLotID, Quantity: d("4"), UnitCost: d("2.5")}),
	}

	res := inventory.ReplayPosition([]*entity.Lot{a, b}, lines)

	assert.True(t, remaining(t, res, "A").Equal(d("8")))
	assert.True(t, remaining(t, res, "B").Equal(d("8")))
	_, _, cost := inventory.WeightedAverage(res.Portions())
	assert.True(t, cost.Equal(d("2.5")))
}

func TestReplayPosition_PoolResiduoDeRedondeo(t *testing.T) {
	lots := []*entity.Lot{
		lot("A", 1, "2024-01-01", "1", "1"),
		lot("B", 2, "2024-01-01", "1", "1"),
		lot("C", 3, "2024-01-01", "1", "1"),
	}
	lines := []entity.LedgerLine{entry("m1", 1, lots[0]), entry("m2", 2, lots[1]), entry("m3", 3, lots[2])}
	lines = append(lines, sale("m4", 4, "2024-01-02", entity.LotConsumption{LotID: entity.PooledLotID, Quantity: d("1"), UnitCost: d("1")}))

	res := inventory.ReplayPosition(lots, lines)

	total := decimal.Zero
	for _, b := range res.Balances {
		assert.False(t, b.Remaining.IsNegative())
		total = total.Add(b.Remaining)
	}
	assert.True(t, total.Equal(d("2")), "total %s", total)
	assert.Empty(t, res.Integrity)
}

func TestReplayPosition_PoolPequenoNoSumaALotes(t *testing.T) {
	lots := []*entity.Lot{
		lot("A", 1, "2024-01-01", "1", "1"),
		lot("B", 2, "2024-01-01", "1", "1"),
		lot("C", 3, "2024-01-01", "1", "1"),
		lot("D", 4, "2024-01-01", "1", "9"),
	}
	lines := []entity.LedgerLine{entry("m1", 1, lots[0]), entry("m2", 2, lots[1]), entry("m3", 3, lots[2]), entry("m4", 4, lots[3])}
	lines = append(lines, sale("m5", 5, "2024-01-02", entity.LotConsumption{LotID: entity.PooledLotID, Quantity: d("0.0002"), UnitCost: d("3")}))

	res := inventory.ReplayPosition(lots, lines)

	total := decimal.Zero
	for _, b := range res.Balances {
		assert.False(t, b.Remaining.IsNegative(), "lote %s", b.Lot.ID)
		assert.True(t, b.Remaining.LessThanOrEqual(b.Lot.EntryQuantity), "lote %s quedó en %s", b.Lot.ID, b.Remaining)
		total = total.Add(b.Remaining)
	}
	assert.True(t, total.Equal(d("3.9998")), "total %s", total)
	assert.True(t, remaining(t, res, "A").Equal(d("0.9998")), "el residuo se toma en orden FIFO")
	assert.True(t, remaining(t, res, "D").Equal(d("1")))
	assert.Empty(t, res.Integrity)
}

func TestReplayPosition_PoolInsuficiente(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "2", "1")
	lines := []entity.LedgerLine{
		entry("m1", 1, a),
		sale("m2", 2, "2024-01-02", entity.LotConsumption{LotID: entity.PooledLotID, Quantity: d("5"), UnitCost: d("1")}),
	}

	res := inventory.ReplayPosition([]*entity.Lot{a}, lines)

	assert.True(t, remaining(t, res, "A").IsZero())
	require.Len(t, res.Integrity, 1)
	assert.Equal(t, inventory.IntegrityClamp, res.Integrity[0].Kind)
	assert.Empty(t, res.Integrity[0].LotID)
	assert.True(t, res.Integrity[0].Quantity.Equal(d("3")))
}

func TestReplayPosition_AjusteConSigno(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "10", "2")
	adj := entity.LedgerLine{
		MovementID:  "m2",
		MovementSeq: 2,
		Direction:   entity.MovementAjuste,
		Date:        day("2024-01-05"),
		Line:        entity.MovementLine{ID: "m2-1", PositionID: "pos", LotID: "A", Quantity: d("-3"), UnitCost: d("2")},
	}

	res := inventory.ReplayPosition([]*entity.Lot{a}, []entity.LedgerLine{entry("m1", 1, a), adj})

	assert.True(t, remaining(t, res, "A").Equal(d("7")))
}

func TestReplayPosition_MismaFechaDesempataPorSecuencia(t *testing.T) {
	a := lot("A", 2, "2024-01-01", "5", "4")
	b := lot("B", 1, "2024-01-01", "5", "1")
	lots := []*entity.Lot{a, b}
	inventory.SortLots(lots)
	assert.Equal(t, "B", lots[0].ID)
}

func TestLowestQuantitySince(t *testing.T) {
	a := lot("A", 1, "2024-01-01", "10", "2")
	b := lot("B", 3, "2024-02-10", "10", "3")
	pooled := func(movID string, seq int64, date, qty string) entity.LedgerLine {
		return sale(movID, seq, date, entity.LotConsumption{LotID: entity.PooledLotID, Quantity: d(qty), UnitCost: d("2")})
	}

	tests := []struct {
		name  string
		sold  string
		since string
		want  string
	}{
		{name: "salida posterior agota el saldo", sold: "10", since: "2024-01-15", want: "0"},
		{name: "salida posterior parcial", sold: "4", since: "2024-01-15", want: "6"},
		{name: "corte después de todo el libro", sold: "4", since: "2024-03-01", want: "16"},
		{name: "corte el mismo día de la salida", sold: "4", since: "2024-02-01", want: "6"},
		{name: "corte antes de la primera entrada", sold: "4", since: "2023-12-31", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := []entity.LedgerLine{entry("m1", 1, a), pooled("m2", 2, "2024-02-01", tt.sold), entry("m3", 3, b)}

			got := inventory.LowestQuantitySince([]*entity.Lot{a, b}, lines, day(tt.since))

			assert.True(t, got.Equal(d(tt.want)), "obtenido %s", got)
		})
	}
}

func TestFIFOKey_Orden(t *testing.T) {
	a := lot("A", 2, "2024-01-01", "5", "4")
	b := lot("B", 1, "2024-01-01", "5", "1")
	c := lot("C", 1, "2023-12-31", "5", "1")

	assert.True(t, b.FIFOKey().Before(a.FIFOKey()), "misma fecha desempata por secuencia")
	assert.True(t, c.FIFOKey().Before(b.FIFOKey()))
	assert.False(t, a.FIFOKey().Before(a.FIFOKey()))
}

package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/cache"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/memory"
)

const (
	testCompany   = "empresa-1"
	testUser      = "usuario-1"
	testProduct   = "producto-1"
	testWarehouse = "bodega-1"
)

// fixture libro en memoria + caché en memoria + motor y gestor de lotes cableados como en producción.
type fixture struct {
	ctx       context.Context
	ledger    *memory.LedgerRepo
	cache     *cache.MemoryValuationCache
	engine    *inventory.StockEngine
	lifecycle *inventory.LotLifecycleManager
	kardex    *inventory.KardexBuilder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	ledger := store.Ledger()
	c := cache.NewMemoryValuationCache()
	engine := inventory.NewStockEngine(ledger, c, inventory.DefaultTTLClasses(), nil)
	return &fixture{
		ctx:       context.Background(),
		ledger:    ledger,
		cache:     c,
		engine:    engine,
		lifecycle: inventory.NewLotLifecycleManager(store.TxRunner(), engine, c, nil, nil),
		kardex:    inventory.NewKardexBuilder(ledger, engine),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func line(day, qty string) entity.VoucherLine {
	return entity.VoucherLine{
		CompanyID:    testCompany,
		UserID:       testUser,
		VoucherID:    "FC-" + day,
		ProductID:    testProduct,
		WarehouseID:  testWarehouse,
		EmissionDate: date(day),
		Quantity:     dec(qty),
	}
}

func (f *fixture) inbound(t *testing.T, day, qty, cost string) *entity.Lot {
	t.Helper()
	l := line(day, qty)
	l.UnitCost = decPtr(cost)
	lot, err := f.lifecycle.OnInboundLine(f.ctx, l)
	require.NoError(t, err)
	return lot
}

func (f *fixture) outbound(day, qty string, policy entity.ValuationPolicy) (*inventory.OutboundResult, error) {
	return f.lifecycle.OnOutboundLine(f.ctx, line(day, qty), policy, nil)
}

func (f *fixture) stock(t *testing.T, positionID string, cutoff *time.Time) *inventory.PositionStock {
	t.Helper()
	ps, err := f.engine.DerivePositionStock(f.ctx, positionID, cutoff)
	require.NoError(t, err)
	return ps
}

// twoLots A 10 @ 2.00 (2024-01-01) y B 10 @ 3.00 (2024-01-10).
func (f *fixture) twoLots(t *testing.T) (a, b *entity.Lot) {
	t.Helper()
	return f.inbound(t, "2024-01-01", "10", "2.00"), f.inbound(t, "2024-01-10", "10", "3.00")
}

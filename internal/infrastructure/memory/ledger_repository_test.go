package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/memory"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedPosition(t *testing.T, ledger repository.LedgerRepository) *entity.Position {
	t.Helper()
	pos := &entity.Position{CompanyID: "c1", ProductID: "p1", WarehouseID: "w1"}
	require.NoError(t, ledger.CreatePosition(context.Background(), pos))
	return pos
}

func entry(positionID, lotID, date string, qty int64) *entity.Movement {
	return &entity.Movement{
		CompanyID: "c1",
		Direction: entity.MovementEntrada,
		Date:      day(date),
		Lines: []entity.MovementLine{{
			PositionID: positionID,
			LotID:      lotID,
			Quantity:   decimal.NewFromInt(qty),
			UnitCost:   decimal.NewFromInt(2),
		}},
	}
}

func TestCreatePosition_Idempotente(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStore().Ledger()
	first := seedPosition(t, ledger)
	require.NotEmpty(t, first.ID)

	again := &entity.Position{ID: "otro-id", CompanyID: "c1", ProductID: "p1", WarehouseID: "w1"}
	require.NoError(t, ledger.CreatePosition(ctx, again))
	assert.Equal(t, first.ID, again.ID, "la terna ya existía")

	found, err := ledger.FindPosition(ctx, "c1", "p1", "w1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := ledger.FindPosition(ctx, "c2", "p1", "w1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateLot_RequierePosicionYAsignaSeq(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStore().Ledger()

	err := ledger.CreateLot(ctx, &entity.Lot{PositionID: "no-existe"})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	pos := seedPosition(t, ledger)
	late := &entity.Lot{PositionID: pos.ID, EntryDate: day("2024-01-10"), Active: true}
	early := &entity.Lot{PositionID: pos.ID, EntryDate: day("2024-01-01"), Active: true}
	same := &entity.Lot{PositionID: pos.ID, EntryDate: day("2024-01-01"), Active: true}
	for _, l := range []*entity.Lot{late, early, same} {
		require.NoError(t, ledger.CreateLot(ctx, l))
	}
	assert.Less(t, late.Seq, early.Seq)

	lots, err := ledger.ListLotsByPosition(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, lots, 3)
	assert.Equal(t, []string{early.ID, same.ID, late.ID}, []string{lots[0].ID, lots[1].ID, lots[2].ID})

	require.NoError(t, ledger.SetLotActive(ctx, early.ID, false))
	got, err := ledger.GetLot(ctx, early.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.ErrorIs(t, ledger.SetLotActive(ctx, "x", false), domain.ErrLotNotFound)
}

func TestListLines_Filtros(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewStore().Ledger()
	pos := seedPosition(t, ledger)
	lotA := &entity.Lot{PositionID: pos.ID, EntryDate: day("2024-01-01"), Active: true}
	lotB := &entity.Lot{PositionID: pos.ID, EntryDate: day("2024-01-10"), Active: true}
	require.NoError(t, ledger.CreateLot(ctx, lotA))
	require.NoError(t, ledger.CreateLot(ctx, lotB))

	require.NoError(t, ledger.CreateMovement(ctx, entry(pos.ID, lotB.ID, "2024-01-10", 10)))
	require.NoError(t, ledger.CreateMovement(ctx, entry(pos.ID, lotA.ID, "2024-01-01", 10)))
	sale := &entity.Movement{
		CompanyID: "c1",
		Direction: entity.MovementSalida,
		Date:      day("2024-02-01"),
		Lines: []entity.MovementLine{{
			PositionID: pos.ID,
			Quantity:   decimal.NewFromInt(4),
			Consumptions: []entity.LotConsumption{
				{LotID: lotA.ID, Quantity: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(2)},
			},
		}},
	}
	require.NoError(t, ledger.CreateMovement(ctx, sale))
	require.NotEmpty(t, sale.ID)
	assert.Equal(t, entity.MovementProcessed, sale.State, "estado por defecto")
	assert.Equal(t, sale.Lines[0].ID, sale.Lines[0].Consumptions[0].LineID)

	pending := entry(pos.ID, lotA.ID, "2024-01-05", 99)
	pending.State = entity.MovementPending
	require.NoError(t, ledger.CreateMovement(ctx, pending))

	all, err := ledger.ListLines(ctx, repository.LineFilter{PositionID: pos.ID})
	require.NoError(t, err)
	require.Len(t, all, 3, "solo movimientos PROCESADOS")
	assert.True(t, all[0].Date.Equal(day("2024-01-01")), "orden cronológico")
	assert.Equal(t, entity.MovementSalida, all[2].Direction)

	byLot, err := ledger.ListLines(ctx, repository.LineFilter{LotID: lotA.ID})
	require.NoError(t, err)
	assert.Len(t, byLot, 2, "la línea de entrada y la salida que lo consumió")

	to := day("2024-01-10")
	upTo, err := ledger.ListLines(ctx, repository.LineFilter{PositionID: pos.ID, To: &to})
	require.NoError(t, err)
	assert.Len(t, upTo, 2, "límite superior inclusivo")

	from := day("2024-01-10")
	since, err := ledger.ListLines(ctx, repository.LineFilter{PositionID: pos.ID, From: &from})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	require.NoError(t, ledger.SetMovementState(ctx, sale.ID, entity.MovementCancelled))
	all, err = ledger.ListLines(ctx, repository.LineFilter{PositionID: pos.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stored, err := ledger.GetMovement(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, entity.MovementCancelled, stored.State)
	assert.Len(t, stored.Lines[0].Consumptions, 1, "anular no borra filas")
}

func TestTxRunner_RollbackAnteError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := store.Ledger()
	pos := seedPosition(t, ledger)

	boom := errors.New("boom")
	err := store.TxRunner().Run(ctx, func(tx repository.LedgerRepository) error {
		if err := tx.LockPosition(ctx, pos.ID); err != nil {
			return err
		}
		if err := tx.CreateLot(ctx, &entity.Lot{ID: "lote-tx", PositionID: pos.ID, Active: true}); err != nil {
			return err
		}
		inside, err := tx.GetLot(ctx, "lote-tx")
		require.NoError(t, err)
		require.NotNil(t, inside, "la transacción ve sus propias escrituras")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	lot, err := ledger.GetLot(ctx, "lote-tx")
	require.NoError(t, err)
	assert.Nil(t, lot)
}

func TestTxRunner_Commit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := store.Ledger()
	pos := seedPosition(t, ledger)

	err := store.TxRunner().Run(ctx, func(tx repository.LedgerRepository) error {
		return tx.CreateLot(ctx, &entity.Lot{ID: "lote-ok", PositionID: pos.ID, Active: true})
	})
	require.NoError(t, err)

	lot, err := ledger.GetLot(ctx, "lote-ok")
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.EqualValues(t, 1, lot.Seq)

	assert.ErrorIs(t, ledger.LockPosition(ctx, "no-existe"), domain.ErrPositionNotFound)
}

func TestTxRunner_ContextoCancelado(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := memory.NewStore().TxRunner().Run(ctx, func(repository.LedgerRepository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

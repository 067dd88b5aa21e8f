package repository

import (
	"context"
	"time"

	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
)

// LineFilter filtro de lectura de líneas procesadas. From/To son límites inclusivos;
// nil significa sin límite. Se aplica PositionID, LotID o ambos.
type LineFilter struct {
	PositionID string
	LotID      string
	From       *time.Time
	To         *time.Time
}

// LedgerRepository puerto del libro de inventario (append-only).
// Las búsquedas sin resultado devuelven (nil, nil).
type LedgerRepository interface {
	GetPosition(ctx context.Context, id string) (*entity.Position, error)
	FindPosition(ctx context.Context, companyID, productID, warehouseID string) (*entity.Position, error)
	CreatePosition(ctx context.Context, position *entity.Position) error
	// LockPosition bloquea la posición hasta el fin de la transacción actual (SELECT FOR UPDATE).
	LockPosition(ctx context.Context, id string) error

	GetLot(ctx context.Context, id string) (*entity.Lot, error)
	// ListLotsByPosition devuelve los lotes en orden FIFO (fecha de entrada, inserción).
	ListLotsByPosition(ctx context.Context, positionID string) ([]*entity.Lot, error)
	CreateLot(ctx context.Context, lot *entity.Lot) error
	SetLotActive(ctx context.Context, id string, active bool) error

	// CreateMovement persiste cabecera, líneas y consumos; asigna IDs y Seq si faltan.
	CreateMovement(ctx context.Context, movement *entity.Movement) error
	GetMovement(ctx context.Context, id string) (*entity.Movement, error)
	// SetMovementState solo cambia la bandera de estado; nunca borra filas.
	SetMovementState(ctx context.Context, id string, state entity.MovementState) error
	// ListLines devuelve líneas de movimientos PROCESADOS, ordenadas por (fecha, seq, línea).
	ListLines(ctx context.Context, filter LineFilter) ([]entity.LedgerLine, error)
}

package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errores de dominio (sin dependencias externas salvo decimal).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")
)

// Variantes específicas. errors.Is sigue funcionando contra el error base.
var (
	ErrPositionNotFound = fmt.Errorf("posición: %w", ErrNotFound)
	ErrLotNotFound      = fmt.Errorf("lote: %w", ErrNotFound)
	ErrMovementNotFound = fmt.Errorf("movimiento: %w", ErrNotFound)
	ErrInvalidQuantity  = fmt.Errorf("%w: la cantidad debe ser mayor a cero", ErrInvalidInput)
	ErrInvalidCost      = fmt.Errorf("%w: el costo unitario no puede ser negativo", ErrInvalidInput)
)

// InsufficientStockError reporta lo solicitado y lo disponible para que el llamador
// pueda mostrar un mensaje accionable.
type InsufficientStockError struct {
	PositionID string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

// Shortfall devuelve la cantidad faltante (Requested - Available).
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuficiente en posición %s: solicitado %s, disponible %s, faltante %s",
		e.PositionID, e.Requested.String(), e.Available.String(), e.Shortfall().String())
}

// Is permite errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MovementDirection es el sentido de un movimiento del libro de inventario.
type MovementDirection string

// Sentidos de movimiento. Cualquier otro valor se rechaza en el borde (ParseMovementDirection).
const (
	MovementEntrada MovementDirection = "ENTRADA" // compra / ingreso
	MovementSalida  MovementDirection = "SALIDA"  // venta / consumo
	MovementAjuste  MovementDirection = "AJUSTE"  // ajuste con signo
)

// ParseMovementDirection convierte el valor crudo de la BD al tipo cerrado.
func ParseMovementDirection(s string) (MovementDirection, error) {
	switch d := MovementDirection(strings.ToUpper(strings.TrimSpace(s))); d {
	case MovementEntrada, MovementSalida, MovementAjuste:
		return d, nil
	}
	return "", fmt.Errorf("tipo de movimiento desconocido: %q", s)
}

// MovementState estado de procesamiento de un movimiento.
type MovementState string

const (
	MovementPending   MovementState = "PENDIENTE"
	MovementProcessed MovementState = "PROCESADO"
	MovementCancelled MovementState = "ANULADO"
)

// PooledLotID identifica la asignación sintética del costo promedio ponderado:
// la salida no nombra lotes concretos sino el pool completo de la posición.
const PooledLotID = "PROMEDIO"

// Movement cabecera del libro (append-only). Nunca se edita; solo cambia State a ANULADO.
type Movement struct {
	ID        string
	Seq       int64 // orden de inserción, desempata movimientos de la misma fecha
	CompanyID string
	Direction MovementDirection
	Date      time.Time
	VoucherID string // comprobante de origen (opcional)
	State     MovementState
	Lines     []MovementLine
	CreatedAt time.Time
	CreatedBy string
}

// MovementLine línea por posición de un movimiento.
// ENTRADA y SALIDA llevan cantidades positivas; AJUSTE lleva cantidad con signo.
type MovementLine struct {
	ID           string
	MovementID   string
	PositionID   string
	LotID        string // vacío si la línea no referencia un lote
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	Consumptions []LotConsumption
}

// LotConsumption registro congelado de cuánto se tomó de un lote y a qué costo.
type LotConsumption struct {
	ID       string
	LineID   string
	LotID    string
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// IsPooled indica si el consumo es la asignación sintética de promedio ponderado.
func (c LotConsumption) IsPooled() bool { return c.LotID == PooledLotID }

// LedgerLine modelo de lectura: línea + cabecera del movimiento procesado.
type LedgerLine struct {
	MovementID  string
	MovementSeq int64
	Direction   MovementDirection
	Date        time.Time
	VoucherID   string
	Line        MovementLine
}

// SignedQuantity devuelve la cantidad con el signo que aporta a la posición.
func (l LedgerLine) SignedQuantity() decimal.Decimal {
	if l.Direction == MovementSalida {
		return l.Line.Quantity.Neg()
	}
	return l.Line.Quantity
}

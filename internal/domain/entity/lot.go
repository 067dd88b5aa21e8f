package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot lote recibido en un momento dado. Se crea en cada línea de compra y no se modifica,
// salvo la desactivación lógica. La cantidad restante nunca se guarda: se deriva del libro.
type Lot struct {
	ID              string
	Seq             int64 // orden de inserción, desempata lotes con la misma fecha de entrada
	PositionID      string
	EntryDate       time.Time
	EntryQuantity   decimal.Decimal
	UnitCost        decimal.Decimal
	ExpiryDate      *time.Time
	Code            string // código de lote externo (opcional)
	Active          bool
	SourceVoucherID string
	CreatedAt       time.Time
}

// FIFOKey clave del orden FIFO estricto: fecha de entrada, luego orden de inserción y por último id.
// Lotes y saldos derivados se ordenan con la misma clave.
type FIFOKey struct {
	EntryDate time.Time
	Seq       int64
	ID        string
}

// Before indica si k va antes que o en orden FIFO.
func (k FIFOKey) Before(o FIFOKey) bool {
	if !k.EntryDate.Equal(o.EntryDate) {
		return k.EntryDate.Before(o.EntryDate)
	}
	if k.Seq != o.Seq {
		return k.Seq < o.Seq
	}
	return k.ID < o.ID
}

// FIFOKey clave de orden del lote.
func (l *Lot) FIFOKey() FIFOKey {
	return FIFOKey{EntryDate: l.EntryDate, Seq: l.Seq, ID: l.ID}
}

// FIFOBefore define el orden FIFO estricto: fecha de entrada y luego orden de inserción.
func (l *Lot) FIFOBefore(o *Lot) bool {
	return l.FIFOKey().Before(o.FIFOKey())
}

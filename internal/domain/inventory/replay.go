package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
)

// IntegrityKind clasifica las anomalías detectadas durante la reproducción del libro.
type IntegrityKind string

const (
	// IntegrityClamp: el libro intentó dejar un lote (o el pool) en negativo; se fijó en cero.
	IntegrityClamp IntegrityKind = "clamp"
	// IntegrityOrphan: la línea referencia un lote ajeno a la posición o una entrada sin lote.
	IntegrityOrphan IntegrityKind = "orphan"
)

// IntegrityEvent anomalía observada al reproducir. LotID vacío = pool de la posición.
type IntegrityEvent struct {
	Kind       IntegrityKind
	LotID      string
	MovementID string
	Quantity   decimal.Decimal // déficit (clamp) o cantidad ignorada (orphan)
}

// LotBalance saldo derivado de un lote.
type LotBalance struct {
	Lot       *entity.Lot
	Remaining decimal.Decimal
}

// ReplayResult resultado de reproducir el libro de una posición.
type ReplayResult struct {
	Balances  []LotBalance // orden FIFO
	Integrity []IntegrityEvent
}

// Balance devuelve el saldo de un lote concreto.
func (r ReplayResult) Balance(lotID string) (LotBalance, bool) {
	for _, b := range r.Balances {
		if b.Lot.ID == lotID {
			return b, true
		}
	}
	return LotBalance{}, false
}

// Clamped indica si hubo que fijar algún saldo en cero.
func (r ReplayResult) Clamped() bool {
	for _, e := range r.Integrity {
		if e.Kind == IntegrityClamp {
			return true
		}
	}
	return false
}

// Portions convierte los saldos positivos en porciones valorizadas.
func (r ReplayResult) Portions() []Portion {
	out := make([]Portion, 0, len(r.Balances))
	for _, b := range r.Balances {
		if b.Remaining.IsPositive() {
			out = append(out, Portion{Quantity: b.Remaining, UnitCost: b.Lot.UnitCost})
		}
	}
	return out
}

// SortLots ordena lotes en orden FIFO estricto (fecha de entrada, luego inserción).
func SortLots(lots []*entity.Lot) {
	sort.SliceStable(lots, func(i, j int) bool { return lots[i].FIFOBefore(lots[j]) })
}

// SortLedgerLines ordena por (fecha, secuencia de movimiento, id de línea).
func SortLedgerLines(lines []entity.LedgerLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.MovementSeq != b.MovementSeq {
			return a.MovementSeq < b.MovementSeq
		}
		return a.Line.ID < b.Line.ID
	})
}

// ReplayPosition reproduce cronológicamente las líneas procesadas de una posición sobre sus lotes.
//
//   - Línea con consumos: cada consumo resta del lote nombrado; el consumo PROMEDIO resta del pool.
//   - Línea con lote y sin consumos: suma (ENTRADA), resta (SALIDA) o ajusta con signo (AJUSTE).
//   - Línea sin lote ni consumos: si resta, se descuenta del pool; si suma, es huérfana.
//
// Descontar del pool reparte la cantidad proporcionalmente entre los lotes con saldo, lo que
// conserva el costo promedio. Ningún saldo queda negativo: cada exceso se registra como clamp.
// No modifica los slices recibidos.
func ReplayPosition(lots []*entity.Lot, lines []entity.LedgerLine) ReplayResult {
	ordered, st, sorted := newReplay(lots, lines)
	for _, ll := range sorted {
		st.apply(ll)
	}

	res := ReplayResult{Balances: make([]LotBalance, len(ordered)), Integrity: st.events}
	for i, l := range ordered {
		res.Balances[i] = LotBalance{Lot: l, Remaining: st.remaining[i]}
	}
	return res
}

// LowestQuantitySince reproduce todas las líneas y devuelve el menor saldo total de la posición
// desde el cierre del día since: el saldo a ese corte y el que queda después de cada línea
// posterior. Es lo máximo que una salida fechada en since puede tomar sin dejar en descubierto
// las salidas ya registradas con fecha posterior.
func LowestQuantitySince(lots []*entity.Lot, lines []entity.LedgerLine, since time.Time) decimal.Decimal {
	_, st, sorted := newReplay(lots, lines)
	bound := EndOfDay(since)

	low, started := decimal.Zero, false
	for _, ll := range sorted {
		if !ll.Date.After(bound) {
			st.apply(ll)
			continue
		}
		if !started {
			low, started = st.total(), true
		}
		st.apply(ll)
		low = decimal.Min(low, st.total())
	}
	if !started {
		return st.total()
	}
	return low
}

// newReplay ordena copias de lotes y líneas y prepara el estado con saldos en cero.
func newReplay(lots []*entity.Lot, lines []entity.LedgerLine) ([]*entity.Lot, *replayState, []entity.LedgerLine) {
	ordered := make([]*entity.Lot, len(lots))
	copy(ordered, lots)
	SortLots(ordered)

	st := &replayState{
		index:     make(map[string]int, len(ordered)),
		remaining: make([]decimal.Decimal, len(ordered)),
	}
	for i, l := range ordered {
		st.index[l.ID] = i
		st.remaining[i] = decimal.Zero
	}

	sorted := make([]entity.LedgerLine, len(lines))
	copy(sorted, lines)
	SortLedgerLines(sorted)
	return ordered, st, sorted
}

type replayState struct {
	index     map[string]int
	remaining []decimal.Decimal
	events    []IntegrityEvent
}

func (s *replayState) apply(ll entity.LedgerLine) {
	line := ll.Line
	if len(line.Consumptions) > 0 {
		for _, c := range line.Consumptions {
			if c.IsPooled() {
				s.drawPooled(c.Quantity, ll.MovementID)
				continue
			}
			s.add(c.LotID, c.Quantity.Neg(), ll.MovementID)
		}
		return
	}
	signed := ll.SignedQuantity()
	if line.LotID != "" {
		s.add(line.LotID, signed, ll.MovementID)
		return
	}
	if signed.IsNegative() {
		s.drawPooled(signed.Neg(), ll.MovementID)
		return
	}
	if signed.IsPositive() {
		s.events = append(s.events, IntegrityEvent{Kind: IntegrityOrphan, MovementID: ll.MovementID, Quantity: signed})
	}
}

func (s *replayState) add(lotID string, qty decimal.Decimal, movementID string) {
	i, ok := s.index[lotID]
	if !ok {
		s.events = append(s.events, IntegrityEvent{Kind: IntegrityOrphan, LotID: lotID, MovementID: movementID, Quantity: qty.Abs()})
		return
	}
	next := s.remaining[i].Add(qty)
	if next.IsNegative() {
		s.events = append(s.events, IntegrityEvent{Kind: IntegrityClamp, LotID: lotID, MovementID: movementID, Quantity: next.Neg()})
		next = decimal.Zero
	}
	s.remaining[i] = next
}

func (s *replayState) drawPooled(qty decimal.Decimal, movementID string) {
	if !qty.IsPositive() {
		return
	}
	total := decimal.Zero
	for _, r := range s.remaining {
		if r.IsPositive() {
			total = total.Add(r)
		}
	}
	if qty.GreaterThanOrEqual(total) {
		for i := range s.remaining {
			s.remaining[i] = decimal.Zero
		}
		if deficit := qty.Sub(total); deficit.IsPositive() {
			s.events = append(s.events, IntegrityEvent{Kind: IntegrityClamp, MovementID: movementID, Quantity: deficit})
		}
		return
	}
	// cuotas truncadas a 4 decimales: su suma nunca pasa de qty
	taken := decimal.Zero
	for i, r := range s.remaining {
		if !r.IsPositive() {
			continue
		}
		share := r.Mul(qty).Div(total).RoundFloor(QuantityPlaces)
		share = decimal.Min(share, r, qty.Sub(taken))
		s.remaining[i] = r.Sub(share)
		taken = taken.Add(share)
	}
	// residuo de redondeo: se toma en orden FIFO
	for i := 0; taken.LessThan(qty) && i < len(s.remaining); i++ {
		share := decimal.Min(qty.Sub(taken), s.remaining[i])
		s.remaining[i] = s.remaining[i].Sub(share)
		taken = taken.Add(share)
	}
}

func (s *replayState) total() decimal.Decimal {
	t := decimal.Zero
	for _, r := range s.remaining {
		t = t.Add(r)
	}
	return t
}

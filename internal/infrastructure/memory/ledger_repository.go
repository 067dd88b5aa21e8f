// Package memory implementa el libro de inventario en memoria. Sirve para LEDGER_BACKEND=memory
// y para pruebas; no persiste nada entre reinicios.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

var (
	_ repository.LedgerRepository = (*LedgerRepo)(nil)
	_ inventory.TxRunner          = (*TxRunner)(nil)
)

type positionKey struct{ company, product, warehouse string }

type state struct {
	positions map[string]entity.Position
	byKey     map[positionKey]string
	lots      map[string]entity.Lot
	movements map[string]entity.Movement
	lotSeq    int64
	movSeq    int64
}

func newState() *state {
	return &state{
		positions: make(map[string]entity.Position),
		byKey:     make(map[positionKey]string),
		lots:      make(map[string]entity.Lot),
		movements: make(map[string]entity.Movement),
	}
}

// clone copia los mapas. Las líneas de un movimiento nunca se modifican, así que se comparten.
func (s *state) clone() *state {
	c := &state{
		positions: make(map[string]entity.Position, len(s.positions)),
		byKey:     make(map[positionKey]string, len(s.byKey)),
		lots:      make(map[string]entity.Lot, len(s.lots)),
		movements: make(map[string]entity.Movement, len(s.movements)),
		lotSeq:    s.lotSeq,
		movSeq:    s.movSeq,
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	return c
}

// Store contiene el estado compartido. Las escrituras se serializan (una transacción a la vez),
// lo que equivale al bloqueo pesimista de la posición en PostgreSQL.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	st      *state
}

// NewStore crea un libro vacío.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Ledger devuelve el repositorio de lectura/escritura fuera de transacción.
func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{store: s}
}

// TxRunner devuelve el runner transaccional del store.
func (s *Store) TxRunner() *TxRunner {
	return &TxRunner{store: s}
}

// TxRunner aplica fn sobre una copia del estado y la publica solo si fn no falla.
type TxRunner struct {
	store *Store
}

// Run implementa inventory.TxRunner.
func (r *TxRunner) Run(ctx context.Context, fn func(ledger repository.LedgerRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.writeMu.Lock()
	defer r.store.writeMu.Unlock()

	r.store.mu.RLock()
	staged := r.store.st.clone()
	r.store.mu.RUnlock()

	if err := fn(&LedgerRepo{store: r.store, tx: staged}); err != nil {
		return err
	}
	r.store.mu.Lock()
	r.store.st = staged
	r.store.mu.Unlock()
	return nil
}

// LedgerRepo implementación de repository.LedgerRepository en memoria.
// Con tx != nil opera sobre el estado de la transacción sin tomar locks.
type LedgerRepo struct {
	store *Store
	tx    *state
}

func (r *LedgerRepo) read(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return fn(r.store.st)
}

func (r *LedgerRepo) write(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.writeMu.Lock()
	defer r.store.writeMu.Unlock()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.st)
}

// GetPosition devuelve la posición o nil.
func (r *LedgerRepo) GetPosition(_ context.Context, id string) (*entity.Position, error) {
	var out *entity.Position
	err := r.read(func(st *state) error {
		if p, ok := st.positions[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

// FindPosition busca por (empresa, producto, bodega).
func (r *LedgerRepo) FindPosition(_ context.Context, companyID, productID, warehouseID string) (*entity.Position, error) {
	var out *entity.Position
	err := r.read(func(st *state) error {
		id, ok := st.byKey[positionKey{companyID, productID, warehouseID}]
		if !ok {
			return nil
		}
		p := st.positions[id]
		out = &p
		return nil
	})
	return out, err
}

// CreatePosition crea la posición; si ya existe la terna, devuelve la existente en position.
func (r *LedgerRepo) CreatePosition(_ context.Context, position *entity.Position) error {
	return r.write(func(st *state) error {
		key := positionKey{position.CompanyID, position.ProductID, position.WarehouseID}
		if id, ok := st.byKey[key]; ok {
			*position = st.positions[id]
			return nil
		}
		if position.ID == "" {
			position.ID = uuid.New().String()
		}
		st.positions[position.ID] = *position
		st.byKey[key] = position.ID
		return nil
	})
}

// LockPosition solo verifica existencia: la transacción ya tiene el store en exclusiva.
func (r *LedgerRepo) LockPosition(_ context.Context, id string) error {
	return r.read(func(st *state) error {
		if _, ok := st.positions[id]; !ok {
			return domain.ErrPositionNotFound
		}
		return nil
	})
}

// GetLot devuelve el lote o nil.
func (r *LedgerRepo) GetLot(_ context.Context, id string) (*entity.Lot, error) {
	var out *entity.Lot
	err := r.read(func(st *state) error {
		if l, ok := st.lots[id]; ok {
			out = &l
		}
		return nil
	})
	return out, err
}

// ListLotsByPosition lotes de la posición en orden FIFO.
func (r *LedgerRepo) ListLotsByPosition(_ context.Context, positionID string) ([]*entity.Lot, error) {
	var out []*entity.Lot
	err := r.read(func(st *state) error {
		for _, l := range st.lots {
			if l.PositionID == positionID {
				l := l
				out = append(out, &l)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].FIFOBefore(out[j]) })
	return out, err
}

// CreateLot asigna ID y Seq si faltan.
func (r *LedgerRepo) CreateLot(_ context.Context, lot *entity.Lot) error {
	return r.write(func(st *state) error {
		if _, ok := st.positions[lot.PositionID]; !ok {
			return domain.ErrPositionNotFound
		}
		if lot.ID == "" {
			lot.ID = uuid.New().String()
		}
		st.lotSeq++
		if lot.Seq == 0 {
			lot.Seq = st.lotSeq
		}
		st.lots[lot.ID] = *lot
		return nil
	})
}

// SetLotActive cambia la bandera de actividad del lote.
func (r *LedgerRepo) SetLotActive(_ context.Context, id string, active bool) error {
	return r.write(func(st *state) error {
		l, ok := st.lots[id]
		if !ok {
			return domain.ErrLotNotFound
		}
		l.Active = active
		st.lots[id] = l
		return nil
	})
}

// CreateMovement guarda cabecera, líneas y consumos asignando los IDs que falten.
func (r *LedgerRepo) CreateMovement(_ context.Context, movement *entity.Movement) error {
	return r.write(func(st *state) error {
		if movement.ID == "" {
			movement.ID = uuid.New().String()
		}
		st.movSeq++
		movement.Seq = st.movSeq
		if movement.State == "" {
			movement.State = entity.MovementProcessed
		}
		lines := make([]entity.MovementLine, len(movement.Lines))
		for i, l := range movement.Lines {
			if l.ID == "" {
				l.ID = uuid.New().String()
			}
			l.MovementID = movement.ID
			cons := make([]entity.LotConsumption, len(l.Consumptions))
			for j, c := range l.Consumptions {
				if c.ID == "" {
					c.ID = uuid.New().String()
				}
				c.LineID = l.ID
				cons[j] = c
			}
			l.Consumptions = cons
			lines[i] = l
		}
		movement.Lines = lines
		stored := *movement
		stored.Lines = copyLines(lines)
		st.movements[movement.ID] = stored
		return nil
	})
}

// GetMovement devuelve el movimiento con sus líneas, o nil.
func (r *LedgerRepo) GetMovement(_ context.Context, id string) (*entity.Movement, error) {
	var out *entity.Movement
	err := r.read(func(st *state) error {
		if m, ok := st.movements[id]; ok {
			m.Lines = copyLines(m.Lines)
			out = &m
		}
		return nil
	})
	return out, err
}

// SetMovementState cambia solo el estado.
func (r *LedgerRepo) SetMovementState(_ context.Context, id string, to entity.MovementState) error {
	return r.write(func(st *state) error {
		m, ok := st.movements[id]
		if !ok {
			return domain.ErrMovementNotFound
		}
		m.State = to
		st.movements[id] = m
		return nil
	})
}

// ListLines líneas procesadas que cumplen el filtro. LotID coincide con la línea o con alguno de sus consumos.
func (r *LedgerRepo) ListLines(_ context.Context, filter repository.LineFilter) ([]entity.LedgerLine, error) {
	var out []entity.LedgerLine
	err := r.read(func(st *state) error {
		for _, m := range st.movements {
			if m.State != entity.MovementProcessed {
				continue
			}
			if filter.From != nil && m.Date.Before(*filter.From) {
				continue
			}
			if filter.To != nil && m.Date.After(*filter.To) {
				continue
			}
			for _, l := range m.Lines {
				if filter.PositionID != "" && l.PositionID != filter.PositionID {
					continue
				}
				if filter.LotID != "" && !touchesLot(l, filter.LotID) {
					continue
				}
				l.Consumptions = append([]entity.LotConsumption(nil), l.Consumptions...)
				out = append(out, entity.LedgerLine{
					MovementID:  m.ID,
					MovementSeq: m.Seq,
					Direction:   m.Direction,
					Date:        m.Date,
					VoucherID:   m.VoucherID,
					Line:        l,
				})
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.MovementSeq != b.MovementSeq {
			return a.MovementSeq < b.MovementSeq
		}
		return a.Line.ID < b.Line.ID
	})
	return out, err
}

func touchesLot(l entity.MovementLine, lotID string) bool {
	if l.LotID == lotID {
		return true
	}
	for _, c := range l.Consumptions {
		if c.LotID == lotID {
			return true
		}
	}
	return false
}

func copyLines(lines []entity.MovementLine) []entity.MovementLine {
	out := make([]entity.MovementLine, len(lines))
	for i, l := range lines {
		l.Consumptions = append([]entity.LotConsumption(nil), l.Consumptions...)
		out[i] = l
	}
	return out
}

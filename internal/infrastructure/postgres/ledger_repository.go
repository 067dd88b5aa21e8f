package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

var _ repository.LedgerRepository = (*LedgerRepo)(nil)

const (
	positionsTable    = "inventory_positions"
	lotsTable         = "inventory_lots"
	movementsTable    = "inventory_movements"
	linesTable        = "inventory_movement_lines"
	consumptionsTable = "inventory_lot_consumptions"
)

var (
	positionColumns    = []string{"id", "company_id", "product_id", "warehouse_id", "created_at"}
	lotColumns         = []string{"id", "seq", "position_id", "entry_date", "entry_quantity", "unit_cost", "expiry_date", "code", "active", "source_voucher_id", "created_at"}
	consumptionColumns = []string{"id", "line_id", "lot_id", "quantity", "unit_cost"}
)

// LedgerRepo implementación de LedgerRepository sobre PostgreSQL (usable con pool o tx).
type LedgerRepo struct {
	q       Querier
	builder squirrel.StatementBuilderType
}

// NewLedgerRepository construye el adaptador del libro. Pasar pool o tx (Querier).
func NewLedgerRepository(q Querier) *LedgerRepo {
	return &LedgerRepo{
		q:       q,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type positionRow struct {
	ID          string    `db:"id"`
	CompanyID   string    `db:"company_id"`
	ProductID   string    `db:"product_id"`
	WarehouseID string    `db:"warehouse_id"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r positionRow) entity() *entity.Position {
	return &entity.Position{ID: r.ID, CompanyID: r.CompanyID, ProductID: r.ProductID, WarehouseID: r.WarehouseID, CreatedAt: r.CreatedAt}
}

type lotRow struct {
	ID              string          `db:"id"`
	Seq             int64           `db:"seq"`
	PositionID      string          `db:"position_id"`
	EntryDate       time.Time       `db:"entry_date"`
	EntryQuantity   decimal.Decimal `db:"entry_quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost"`
	ExpiryDate      *time.Time      `db:"expiry_date"`
	Code            string          `db:"code"`
	Active          bool            `db:"active"`
	SourceVoucherID string          `db:"source_voucher_id"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (r lotRow) entity() *entity.Lot {
	return &entity.Lot{
		ID:              r.ID,
		Seq:             r.Seq,
		PositionID:      r.PositionID,
		EntryDate:       r.EntryDate,
		EntryQuantity:   r.EntryQuantity,
		UnitCost:        r.UnitCost,
		ExpiryDate:      r.ExpiryDate,
		Code:            r.Code,
		Active:          r.Active,
		SourceVoucherID: r.SourceVoucherID,
		CreatedAt:       r.CreatedAt,
	}
}

type movementRow struct {
	ID        string    `db:"id"`
	Seq       int64     `db:"seq"`
	CompanyID string    `db:"company_id"`
	Direction string    `db:"direction"`
	Date      time.Time `db:"movement_date"`
	VoucherID string    `db:"voucher_id"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	CreatedBy string    `db:"created_by"`
}

type lineRow struct {
	ID          string          `db:"id"`
	MovementID  string          `db:"movement_id"`
	PositionID  string          `db:"position_id"`
	LotID       *string         `db:"lot_id"`
	Quantity    decimal.Decimal `db:"quantity"`
	UnitCost    decimal.Decimal `db:"unit_cost"`
	MovementSeq int64           `db:"movement_seq"`
	Direction   string          `db:"direction"`
	Date        time.Time       `db:"movement_date"`
	VoucherID   string          `db:"voucher_id"`
}

func (r lineRow) line() entity.MovementLine {
	l := entity.MovementLine{
		ID:         r.ID,
		MovementID: r.MovementID,
		PositionID: r.PositionID,
		Quantity:   r.Quantity,
		UnitCost:   r.UnitCost,
	}
	if r.LotID != nil {
		l.LotID = *r.LotID
	}
	return l
}

type consumptionRow struct {
	ID       string          `db:"id"`
	LineID   string          `db:"line_id"`
	LotID    string          `db:"lot_id"`
	Quantity decimal.Decimal `db:"quantity"`
	UnitCost decimal.Decimal `db:"unit_cost"`
}

// GetPosition devuelve la posición o nil.
func (r *LedgerRepo) GetPosition(ctx context.Context, id string) (*entity.Position, error) {
	return r.getPosition(ctx, squirrel.Eq{"id": id})
}

// FindPosition busca por (empresa, producto, bodega).
func (r *LedgerRepo) FindPosition(ctx context.Context, companyID, productID, warehouseID string) (*entity.Position, error) {
	return r.getPosition(ctx, squirrel.Eq{"company_id": companyID, "product_id": productID, "warehouse_id": warehouseID})
}

func (r *LedgerRepo) getPosition(ctx context.Context, where squirrel.Eq) (*entity.Position, error) {
	sql, args, err := r.builder.Select(positionColumns...).From(positionsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row positionRow
	if err := pgxscan.Get(ctx, r.q, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return row.entity(), nil
}

// CreatePosition inserta la posición; si la terna ya existe devuelve la fila existente en position.
func (r *LedgerRepo) CreatePosition(ctx context.Context, position *entity.Position) error {
	if position.ID == "" {
		position.ID = uuid.New().String()
	}
	sql, args, err := r.builder.Insert(positionsTable).
		Columns(positionColumns...).
		Values(position.ID, position.CompanyID, position.ProductID, position.WarehouseID, position.CreatedAt).
		Suffix("ON CONFLICT (company_id, product_id, warehouse_id) DO UPDATE SET company_id = EXCLUDED.company_id RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&position.ID, &position.CreatedAt); err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

// LockPosition SELECT ... FOR UPDATE sobre la posición; dura hasta el fin de la transacción.
func (r *LedgerRepo) LockPosition(ctx context.Context, id string) error {
	sql, args, err := r.builder.Select("id").From(positionsTable).Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var locked string
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPositionNotFound
		}
		return fmt.Errorf("lock position: %w", err)
	}
	return nil
}

// GetLot devuelve el lote o nil.
func (r *LedgerRepo) GetLot(ctx context.Context, id string) (*entity.Lot, error) {
	sql, args, err := r.builder.Select(lotColumns...).From(lotsTable).Where(squirrel.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row lotRow
	if err := pgxscan.Get(ctx, r.q, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return row.entity(), nil
}

// ListLotsByPosition lotes de la posición en orden FIFO.
func (r *LedgerRepo) ListLotsByPosition(ctx context.Context, positionID string) ([]*entity.Lot, error) {
	sql, args, err := r.builder.Select(lotColumns...).From(lotsTable).
		Where(squirrel.Eq{"position_id": positionID}).
		OrderBy("entry_date", "seq", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []lotRow
	if err := pgxscan.Select(ctx, r.q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	out := make([]*entity.Lot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.entity())
	}
	return out, nil
}

// CreateLot inserta el lote; seq lo asigna la secuencia de la tabla.
func (r *LedgerRepo) CreateLot(ctx context.Context, lot *entity.Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	sql, args, err := r.builder.Insert(lotsTable).
		Columns("id", "position_id", "entry_date", "entry_quantity", "unit_cost", "expiry_date", "code", "active", "source_voucher_id", "created_at").
		Values(lot.ID, lot.PositionID, lot.EntryDate, lot.EntryQuantity, lot.UnitCost, lot.ExpiryDate, lot.Code, lot.Active, lot.SourceVoucherID, lot.CreatedAt).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&lot.Seq); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrPositionNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: lote %s ya existe", domain.ErrConflict, lot.ID)
		}
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

// SetLotActive cambia la bandera de actividad del lote.
func (r *LedgerRepo) SetLotActive(ctx context.Context, id string, active bool) error {
	sql, args, err := r.builder.Update(lotsTable).Set("active", active).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set lot active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLotNotFound
	}
	return nil
}

// CreateMovement inserta cabecera, líneas y consumos. Debe llamarse dentro de una transacción.
func (r *LedgerRepo) CreateMovement(ctx context.Context, movement *entity.Movement) error {
	if movement.ID == "" {
		movement.ID = uuid.New().String()
	}
	if movement.State == "" {
		movement.State = entity.MovementProcessed
	}
	sql, args, err := r.movementInsert(movement).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&movement.Seq); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	if len(movement.Lines) == 0 {
		return nil
	}

	lines, cons, nCons := r.lineInserts(movement)
	sql, args, err = lines.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := r.q.Exec(ctx, sql, args...); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: la línea referencia una posición o lote inexistente", domain.ErrNotFound)
		}
		return fmt.Errorf("insert lines: %w", err)
	}
	if nCons == 0 {
		return nil
	}
	sql, args, err = cons.ToSql()
	if err != nil {
		return fmt.Errorf("build insert consumptions: %w", err)
	}
	if _, err := r.q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert consumptions: %w", err)
	}
	return nil
}

func (r *LedgerRepo) movementInsert(movement *entity.Movement) squirrel.InsertBuilder {
	return r.builder.Insert(movementsTable).
		Columns("id", "company_id", "direction", "movement_date", "voucher_id", "state", "created_at", "created_by").
		Values(movement.ID, movement.CompanyID, string(movement.Direction), movement.Date, movement.VoucherID, string(movement.State), movement.CreatedAt, movement.CreatedBy).
		Suffix("RETURNING seq")
}

// lineInserts arma los INSERT multi-fila de líneas y consumos, completando ids y referencias.
// ord conserva el orden del plan de consumo.
func (r *LedgerRepo) lineInserts(movement *entity.Movement) (lines, cons squirrel.InsertBuilder, nCons int) {
	lines = r.builder.Insert(linesTable).Columns("id", "movement_id", "position_id", "lot_id", "quantity", "unit_cost")
	cons = r.builder.Insert(consumptionsTable).Columns(append(consumptionColumns, "ord")...)
	for i := range movement.Lines {
		l := &movement.Lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.MovementID = movement.ID
		lines = lines.Values(l.ID, l.MovementID, l.PositionID, nullIfEmpty(l.LotID), l.Quantity, l.UnitCost)
		for j := range l.Consumptions {
			c := &l.Consumptions[j]
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.LineID = l.ID
			cons = cons.Values(c.ID, c.LineID, c.LotID, c.Quantity, c.UnitCost, j)
			nCons++
		}
	}
	return lines, cons, nCons
}

// GetMovement devuelve el movimiento con sus líneas y consumos, o nil.
func (r *LedgerRepo) GetMovement(ctx context.Context, id string) (*entity.Movement, error) {
	sql, args, err := r.builder.
		Select("id", "seq", "company_id", "direction", "movement_date", "voucher_id", "state", "created_at", "created_by").
		From(movementsTable).Where(squirrel.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row movementRow
	if err := pgxscan.Get(ctx, r.q, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	dir, err := entity.ParseMovementDirection(row.Direction)
	if err != nil {
		return nil, err
	}
	mov := &entity.Movement{
		ID:        row.ID,
		Seq:       row.Seq,
		CompanyID: row.CompanyID,
		Direction: dir,
		Date:      row.Date,
		VoucherID: row.VoucherID,
		State:     entity.MovementState(row.State),
		CreatedAt: row.CreatedAt,
		CreatedBy: row.CreatedBy,
	}

	lines, err := r.selectLines(ctx, r.lineQuery().Where(squirrel.Eq{"l.movement_id": id}))
	if err != nil {
		return nil, err
	}
	for _, ll := range lines {
		mov.Lines = append(mov.Lines, ll.Line)
	}
	return mov, nil
}

// SetMovementState cambia solo la bandera de estado.
func (r *LedgerRepo) SetMovementState(ctx context.Context, id string, state entity.MovementState) error {
	sql, args, err := r.builder.Update(movementsTable).Set("state", string(state)).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set movement state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMovementNotFound
	}
	return nil
}

// ListLines líneas de movimientos PROCESADOS que cumplen el filtro, en orden (fecha, seq, línea).
// El filtro por lote coincide con la línea o con alguno de sus consumos.
func (r *LedgerRepo) ListLines(ctx context.Context, filter repository.LineFilter) ([]entity.LedgerLine, error) {
	return r.selectLines(ctx, r.listLinesQuery(filter))
}

func (r *LedgerRepo) listLinesQuery(filter repository.LineFilter) squirrel.SelectBuilder {
	q := r.lineQuery().Where(squirrel.Eq{"m.state": string(entity.MovementProcessed)})
	if filter.PositionID != "" {
		q = q.Where(squirrel.Eq{"l.position_id": filter.PositionID})
	}
	if filter.LotID != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"l.lot_id": filter.LotID},
			squirrel.Expr("EXISTS (SELECT 1 FROM "+consumptionsTable+" c WHERE c.line_id = l.id AND c.lot_id = ?)", filter.LotID),
		})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"m.movement_date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"m.movement_date": *filter.To})
	}
	return q
}

func (r *LedgerRepo) lineQuery() squirrel.SelectBuilder {
	return r.builder.
		Select("l.id", "l.movement_id", "l.position_id", "l.lot_id", "l.quantity", "l.unit_cost",
			"m.seq AS movement_seq", "m.direction", "m.movement_date", "m.voucher_id").
		From(linesTable + " l").
		Join(movementsTable + " m ON m.id = l.movement_id").
		OrderBy("m.movement_date", "m.seq", "l.id")
}

func (r *LedgerRepo) selectLines(ctx context.Context, q squirrel.SelectBuilder) ([]entity.LedgerLine, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []lineRow
	if err := pgxscan.Select(ctx, r.q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	consByLine, err := r.consumptionsOf(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]entity.LedgerLine, 0, len(rows))
	for _, row := range rows {
		dir, err := entity.ParseMovementDirection(row.Direction)
		if err != nil {
			return nil, err
		}
		line := row.line()
		line.Consumptions = consByLine[row.ID]
		out = append(out, entity.LedgerLine{
			MovementID:  row.MovementID,
			MovementSeq: row.MovementSeq,
			Direction:   dir,
			Date:        row.Date,
			VoucherID:   row.VoucherID,
			Line:        line,
		})
	}
	return out, nil
}

func (r *LedgerRepo) consumptionsOf(ctx context.Context, lineIDs []string) (map[string][]entity.LotConsumption, error) {
	sql, args, err := r.builder.Select(consumptionColumns...).From(consumptionsTable).
		Where(squirrel.Eq{"line_id": lineIDs}).
		OrderBy("line_id", "ord").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []consumptionRow
	if err := pgxscan.Select(ctx, r.q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list consumptions: %w", err)
	}
	out := make(map[string][]entity.LotConsumption, len(rows))
	for _, c := range rows {
		out[c.LineID] = append(out[c.LineID], entity.LotConsumption{
			ID:       c.ID,
			LineID:   c.LineID,
			LotID:    c.LotID,
			Quantity: c.Quantity,
			UnitCost: c.UnitCost,
		})
	}
	return out, nil
}

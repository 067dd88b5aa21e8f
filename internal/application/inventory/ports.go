package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción del libro, pasando un repositorio
// atado a esa transacción. Commit si fn retorna nil, Rollback en cualquier otro caso.
type TxRunner interface {
	Run(ctx context.Context, fn func(ledger repository.LedgerRepository) error) error
}

// CacheKind tipo de resultado derivado guardado en la caché de valuación.
type CacheKind string

const (
	KindLotStock      CacheKind = "lot_stock"
	KindPositionStock CacheKind = "position_stock"
	KindAvailableLots CacheKind = "available_lots"
)

// CacheKey clave (tipo, id, corte). PositionID es la posición dueña de la entrada:
// no forma parte de la identidad, solo permite que Invalidate(posición) alcance sus lotes.
type CacheKey struct {
	Kind       CacheKind
	ID         string
	Cutoff     *time.Time
	PositionID string
}

// String representación estable de la identidad: kind:id:YYYY-MM-DD|current.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.ID, domaininv.CutoffLabel(k.Cutoff))
}

// TTLClasses duraciones por clase de entrada.
type TTLClasses struct {
	Short  time.Duration // consultas por lote (alta rotación)
	Medium time.Duration // agregados por posición (por defecto)
	Long   time.Duration // listas de lotes disponibles (consultas costosas)
}

// DefaultTTLClasses 2, 5 y 10 minutos.
func DefaultTTLClasses() TTLClasses {
	return TTLClasses{Short: 2 * time.Minute, Medium: 5 * time.Minute, Long: 10 * time.Minute}
}

// ValuationCache memoización con TTL de resultados derivados.
//
// La invalidación es responsabilidad del llamador: toda escritura en el libro que afecte una
// posición o lote debe invalidar sus entradas antes de confiar en lecturas posteriores.
// La caché no se invalida sola; una invalidación omitida sirve datos viejos hasta el TTL.
type ValuationCache interface {
	// Get devuelve el valor y true; una entrada vencida cuenta como fallo y se descarta.
	Get(ctx context.Context, key CacheKey) ([]byte, bool)
	Set(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error
	// Invalidate descarta todas las entradas de la posición, incluidas las de sus lotes.
	Invalidate(ctx context.Context, positionID string) error
	InvalidateLot(ctx context.Context, lotID string) error
	InvalidateMany(ctx context.Context, positionIDs []string) error
	// SweepExpired es higiene de memoria; no hay dependencia de corrección.
	SweepExpired(ctx context.Context) (int, error)
}

// PolicyResolver entrega la política de valuación vigente (configuración de periodos externa).
type PolicyResolver interface {
	PolicyFor(ctx context.Context, companyID string, date time.Time) (entity.ValuationPolicy, error)
}

// noopCache se usa dentro de transacciones de escritura: las lecturas no deben pasar por caché.
type noopCache struct{}

func (noopCache) Get(context.Context, CacheKey) ([]byte, bool)               { return nil, false }
func (noopCache) Set(context.Context, CacheKey, []byte, time.Duration) error { return nil }
func (noopCache) Invalidate(context.Context, string) error                   { return nil }
func (noopCache) InvalidateLot(context.Context, string) error                { return nil }
func (noopCache) InvalidateMany(context.Context, []string) error             { return nil }
func (noopCache) SweepExpired(context.Context) (int, error)                  { return 0, nil }

// KardexPDFGenerator presentación imprimible del kardex.
type KardexPDFGenerator interface {
	GenerateKardexPDF(ctx context.Context, report *KardexReport) ([]byte, error)
}

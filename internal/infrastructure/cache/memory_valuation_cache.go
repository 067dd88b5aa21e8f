package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

var _ inventory.ValuationCache = (*MemoryValuationCache)(nil)

type memoryEntry struct {
	value      []byte
	expiresAt  time.Time
	positionID string
	lotID      string
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryValuationCache caché de valuación en proceso, con índices por posición y por lote
// para que la invalidación no tenga que recorrer todas las claves.
type MemoryValuationCache struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	byPosition map[string]map[string]struct{}
	byLot      map[string]map[string]struct{}
	now        func() time.Time
	log        *logger.Logger
}

// MemoryOption opción funcional del constructor.
type MemoryOption func(*MemoryValuationCache)

// WithClock reemplaza el reloj (pruebas de vencimiento).
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryValuationCache) { c.now = now }
}

// WithLogger asigna el logger.
func WithLogger(log *logger.Logger) MemoryOption {
	return func(c *MemoryValuationCache) { c.log = log }
}

// NewMemoryValuationCache crea la caché vacía.
func NewMemoryValuationCache(opts ...MemoryOption) *MemoryValuationCache {
	c := &MemoryValuationCache{
		entries:    make(map[string]*memoryEntry),
		byPosition: make(map[string]map[string]struct{}),
		byLot:      make(map[string]map[string]struct{}),
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get una entrada vencida cuenta como fallo y se descarta.
func (c *MemoryValuationCache) Get(_ context.Context, key inventory.CacheKey) ([]byte, bool) {
	k := key.String()
	c.mu.RLock()
	e, ok := c.entries[k]
	if ok && !e.expired(c.now()) {
		out := append([]byte(nil), e.value...)
		c.mu.RUnlock()
		return out, true
	}
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok && e.expired(c.now()) {
		c.removeLocked(k)
	}
	c.mu.Unlock()
	return nil, false
}

// Set guarda una copia del valor.
func (c *MemoryValuationCache) Set(_ context.Context, key inventory.CacheKey, value []byte, ttl time.Duration) error {
	k := key.String()
	e := &memoryEntry{
		value:      append([]byte(nil), value...),
		expiresAt:  c.now().Add(ttl),
		positionID: key.PositionID,
	}
	if key.Kind == inventory.KindLotStock {
		e.lotID = key.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; ok {
		c.removeLocked(k)
	}
	c.entries[k] = e
	if e.positionID != "" {
		addIndex(c.byPosition, e.positionID, k)
	}
	if e.lotID != "" {
		addIndex(c.byLot, e.lotID, k)
	}
	return nil
}

// Invalidate descarta todas las entradas de la posición, incluidas las de sus lotes.
func (c *MemoryValuationCache) Invalidate(_ context.Context, positionID string) error {
	c.mu.Lock()
	n := c.dropIndexLocked(c.byPosition, positionID)
	c.mu.Unlock()
	c.log.Debug().Str("position_id", positionID).Int("entries", n).Msg("caché de posición invalidada")
	return nil
}

// InvalidateLot descarta las entradas del lote.
func (c *MemoryValuationCache) InvalidateLot(_ context.Context, lotID string) error {
	c.mu.Lock()
	n := c.dropIndexLocked(c.byLot, lotID)
	c.mu.Unlock()
	c.log.Debug().Str("lot_id", lotID).Int("entries", n).Msg("caché de lote invalidada")
	return nil
}

// InvalidateMany invalida varias posiciones.
func (c *MemoryValuationCache) InvalidateMany(ctx context.Context, positionIDs []string) error {
	for _, id := range positionIDs {
		if err := c.Invalidate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired elimina las entradas vencidas y devuelve cuántas quitó.
func (c *MemoryValuationCache) SweepExpired(_ context.Context) (int, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(k)
			n++
		}
	}
	return n, nil
}

// Len cantidad de entradas guardadas, vencidas o no.
func (c *MemoryValuationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryValuationCache) dropIndexLocked(index map[string]map[string]struct{}, id string) int {
	keys := index[id]
	n := len(keys)
	for k := range keys {
		c.removeLocked(k)
	}
	delete(index, id)
	return n
}

func (c *MemoryValuationCache) removeLocked(k string) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	delete(c.entries, k)
	if e.positionID != "" {
		removeIndex(c.byPosition, e.positionID, k)
	}
	if e.lotID != "" {
		removeIndex(c.byLot, e.lotID, k)
	}
}

func addIndex(index map[string]map[string]struct{}, id, key string) {
	set, ok := index[id]
	if !ok {
		set = make(map[string]struct{})
		index[id] = set
	}
	set[key] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, id, key string) {
	set, ok := index[id]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(index, id)
	}
}

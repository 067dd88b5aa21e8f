package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

var _ inventory.ValuationCache = (*RedisValuationCache)(nil)

const (
	redisPrefix   = "valuacion:"
	redisIndexSet = redisPrefix + "idx"
)

// RedisConfig conexión a Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisValuationCache caché de valuación compartida entre instancias. El vencimiento lo maneja
// Redis; los sets de índice (por posición y por lote) se depuran en SweepExpired.
type RedisValuationCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisValuationCache conecta y verifica con PING.
func NewRedisValuationCache(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*RedisValuationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("conectar a redis: %w", err)
	}
	return NewRedisValuationCacheWithClient(client, log), nil
}

// NewRedisValuationCacheWithClient usa un cliente existente; el llamador lo cierra.
func NewRedisValuationCacheWithClient(client *redis.Client, log *logger.Logger) *RedisValuationCache {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisValuationCache{client: client, log: log}
}

// Close cierra el cliente.
func (c *RedisValuationCache) Close() error {
	return c.client.Close()
}

func entryKey(key inventory.CacheKey) string { return redisPrefix + key.String() }
func positionIndex(id string) string         { return redisPrefix + "idx:pos:" + id }
func lotIndex(id string) string              { return redisPrefix + "idx:lot:" + id }

// Get un error de Redis se trata como fallo de caché.
func (c *RedisValuationCache) Get(ctx context.Context, key inventory.CacheKey) ([]byte, bool) {
	data, err := c.client.Get(ctx, entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("lectura de caché redis fallida")
		return nil, false
	}
	return data, true
}

// Set guarda el valor con TTL y lo registra en los índices.
func (c *RedisValuationCache) Set(ctx context.Context, key inventory.CacheKey, value []byte, ttl time.Duration) error {
	k := entryKey(key)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, k, value, ttl)
		if key.PositionID != "" {
			p.SAdd(ctx, positionIndex(key.PositionID), k)
			p.SAdd(ctx, redisIndexSet, positionIndex(key.PositionID))
		}
		if key.Kind == inventory.KindLotStock {
			p.SAdd(ctx, lotIndex(key.ID), k)
			p.SAdd(ctx, redisIndexSet, lotIndex(key.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("escribir caché redis: %w", err)
	}
	return nil
}

// Invalidate descarta todas las entradas de la posición, incluidas las de sus lotes.
func (c *RedisValuationCache) Invalidate(ctx context.Context, positionID string) error {
	return c.dropIndex(ctx, positionIndex(positionID))
}

// InvalidateLot descarta las entradas del lote.
func (c *RedisValuationCache) InvalidateLot(ctx context.Context, lotID string) error {
	return c.dropIndex(ctx, lotIndex(lotID))
}

// InvalidateMany invalida varias posiciones.
func (c *RedisValuationCache) InvalidateMany(ctx context.Context, positionIDs []string) error {
	for _, id := range positionIDs {
		if err := c.Invalidate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired quita de los índices las claves que Redis ya venció. Devuelve cuántas quitó.
func (c *RedisValuationCache) SweepExpired(ctx context.Context) (int, error) {
	indexes, err := c.client.SMembers(ctx, redisIndexSet).Result()
	if err != nil {
		return 0, fmt.Errorf("listar índices: %w", err)
	}
	pruned := 0
	for _, idx := range indexes {
		members, err := c.client.SMembers(ctx, idx).Result()
		if err != nil {
			return pruned, fmt.Errorf("listar índice %s: %w", idx, err)
		}
		for _, m := range members {
			n, err := c.client.Exists(ctx, m).Result()
			if err != nil {
				return pruned, fmt.Errorf("verificar %s: %w", m, err)
			}
			if n == 0 {
				if err := c.client.SRem(ctx, idx, m).Err(); err != nil {
					return pruned, fmt.Errorf("depurar índice %s: %w", idx, err)
				}
				pruned++
			}
		}
		left, err := c.client.SCard(ctx, idx).Result()
		if err != nil {
			return pruned, err
		}
		if left == 0 {
			if err := c.client.SRem(ctx, redisIndexSet, idx).Err(); err != nil {
				return pruned, err
			}
		}
	}
	return pruned, nil
}

func (c *RedisValuationCache) dropIndex(ctx context.Context, idx string) error {
	members, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("leer índice %s: %w", idx, err)
	}
	keys := append(members, idx)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidar %s: %w", idx, err)
	}
	if err := c.client.SRem(ctx, redisIndexSet, idx).Err(); err != nil {
		return fmt.Errorf("invalidar %s: %w", idx, err)
	}
	c.log.Debug().Str("index", idx).Int("entries", len(members)).Msg("caché redis invalidada")
	return nil
}

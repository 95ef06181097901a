package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/pkg/config"
	"github.com/invorya/inventory-core/pkg/logger"
)

// NewClient crea un cliente Redis desde la URL configurada y verifica la conexión.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

var _ ports.Cache = (*Cache)(nil)

// Cache cache de lectura con TTL sobre Redis. Cada clave se indexa en un set
// por ítem para poder invalidarlas todas ante una mutación de ese ítem.
type Cache struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewCache construye el adaptador de cache.
func NewCache(rdb *redis.Client, log *logger.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

func indexKey(itemID string) string {
	return "inv:idx:" + itemID
}

// Get devuelve la entrada cacheada, o false si no existe o expiró.
func (c *Cache) Get(ctx context.Context, key ports.CacheKey) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug().Err(err).Str("key", key.String()).Msg("leer cache")
		}
		return nil, false
	}
	return raw, true
}

// Set guarda la entrada con el TTL dado y la registra en el índice de su ítem.
func (c *Cache) Set(ctx context.Context, key ports.CacheKey, value []byte, ttl time.Duration) {
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key.String(), value, ttl)
	pipe.SAdd(ctx, indexKey(key.ItemID), key.String())
	pipe.Expire(ctx, indexKey(key.ItemID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Debug().Err(err).Str("key", key.String()).Msg("escribir cache")
	}
}

// InvalidateItem borra todas las entradas indexadas bajo el ítem.
func (c *Cache) InvalidateItem(ctx context.Context, itemID string) {
	keys, err := c.rdb.SMembers(ctx, indexKey(itemID)).Result()
	if err != nil {
		c.log.Debug().Err(err).Str("item_id", itemID).Msg("leer índice de cache")
		return
	}
	keys = append(keys, indexKey(itemID))
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Debug().Err(err).Str("item_id", itemID).Msg("invalidar cache")
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trove/catalog/internal/domain"
)

// CatalogCache keeps the last good catalog in Redis next to a cooldown key.
// While the cooldown key exists, refreshes are served from the cache instead
// of hitting the upstream catalog.
type CatalogCache interface {
	Load(ctx context.Context) (*domain.Catalog, bool, error)
	Store(ctx context.Context, catalog *domain.Catalog) error
	InCooldown(ctx context.Context) (bool, error)
}

type redisCatalogCache struct {
	redisClient *redis.Client
	catalogKey  string
	cooldownKey string
	cooldown    time.Duration
}

func NewRedisCatalogCache(redisClient *redis.Client, keyPrefix string, cooldown time.Duration) CatalogCache {
	catalogKey := keyPrefix + "catalog"
	return &redisCatalogCache{
		redisClient: redisClient,
		catalogKey:  catalogKey,
		cooldownKey: catalogKey + "/cooldown",
		cooldown:    cooldown,
	}
}

// Load returns the cached catalog, or nil when nothing is cached, and whether
// a refresh cooldown is in effect.
func (c *redisCatalogCache) Load(ctx context.Context) (*domain.Catalog, bool, error) {
	pipe := c.redisClient.Pipeline()
	getCmd := pipe.Get(ctx, c.catalogKey)
	existsCmd := pipe.Exists(ctx, c.cooldownKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("failed to load cached catalog: %w", err)
	}

	cooling := existsCmd.Val() > 0

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cooling, nil
	}
	if err != nil {
		return nil, cooling, fmt.Errorf("failed to load cached catalog: %w", err)
	}

	var catalog domain.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, cooling, fmt.Errorf("failed to decode cached catalog: %w", err)
	}
	return &catalog, cooling, nil
}

// Store caches the catalog without expiry and starts the cooldown. Empty
// catalogs are refused so a transient upstream blank never replaces good data.
func (c *redisCatalogCache) Store(ctx context.Context, catalog *domain.Catalog) error {
	if catalog.Len() == 0 {
		return domain.ErrEmptyCatalog
	}

	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	_, err = c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.catalogKey, data, 0)
		if c.cooldown > 0 {
			pipe.Set(ctx, c.cooldownKey, "cooldown", c.cooldown)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache catalog: %w", err)
	}
	return nil
}

func (c *redisCatalogCache) InCooldown(ctx context.Context) (bool, error) {
	n, err := c.redisClient.Exists(ctx, c.cooldownKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check refresh cooldown: %w", err)
	}
	return n > 0, nil
}

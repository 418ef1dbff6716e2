package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trove/catalog/internal/cache"
	"trove/catalog/internal/client"
	"trove/catalog/internal/config"
	"trove/catalog/internal/proxy"
	"trove/catalog/internal/queue"
	"trove/catalog/internal/render"
	"trove/catalog/internal/repository"
	"trove/catalog/internal/server"
	"trove/catalog/internal/service"
)

// fragmentCacheSize bounds the rendered fragments kept in memory; one per
// catalog revision is enough, a few cover refresh overlap.
const fragmentCacheSize = 8

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Client     client.CatalogClient
	Repository repository.ClassifierRepository
	Cache      cache.CatalogCache
	Queue      queue.Queue
	Service    *service.Service
	Renderer   *render.Renderer
	Server     *server.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		Config: cfg,
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	c.db = db

	if err := db.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("✅ Connected to Postgres successfully")

	c.Repository = repository.NewClassifierRepository(db)
	if err := c.Repository.EnsureSchema(ctx); err != nil {
		c.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	c.redis = rdb

	if err := rdb.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis.KeyPrefix, cfg.Redis.ConsumerGroup)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Queue = redisQueue

	c.Cache = cache.NewRedisCatalogCache(rdb, cfg.Redis.KeyPrefix, cfg.Catalog.RefreshCooldownDuration())

	proxySupplier := proxy.NewSupplier(ctx, cfg.Catalog.Proxies, cfg.Catalog.URL())
	c.Client = client.NewCatalogClient(cfg.Catalog, proxySupplier)

	c.Service = service.NewService(c.Repository, c.Client, c.Cache, c.Queue, service.Options{
		GroupName:   cfg.Redis.ConsumerGroup,
		MinIdleTime: secondsToDuration(cfg.Redis.MinIdleTime),
	})

	renderer, memo, err := NewRenderer(cfg.Server)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Renderer = renderer

	c.Server = server.New(c.Service, renderer, memo, server.Options{
		SearchPath:   cfg.Server.SearchPath,
		StaticPath:   cfg.Server.StaticPath,
		ReadTimeout:  secondsToDuration(cfg.Server.ReadTimeout),
		WriteTimeout: secondsToDuration(cfg.Server.WriteTimeout),
	})

	return c, nil
}

// NewRenderer builds the renderer and its fragment memo from server settings.
func NewRenderer(cfg config.ServerConfig) (*render.Renderer, *render.Memo, error) {
	renderer, err := render.NewRenderer(render.Options{
		SearchPath: cfg.SearchPath,
		StaticPath: cfg.StaticPath,
	})
	if err != nil {
		return nil, nil, err
	}
	memo, err := render.NewMemo(renderer, fragmentCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return renderer, memo, nil
}

// Run serves HTTP, consumes refresh tasks and schedules periodic refreshes
// until ctx is done or one of them fails.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Server.Run(ctx, c.Config.Server.Addr())
	})

	g.Go(func() error {
		return c.Service.RunWorkers(ctx, c.Config.Worker.Count)
	})

	g.Go(func() error {
		return c.Service.RunScheduler(ctx, c.Config.Catalog.RefreshIntervalDuration())
	})

	// Warm the cache so the first page view does not wait on upstream.
	g.Go(func() error {
		if _, err := c.Service.RequestRefresh(ctx, "startup", false); err != nil {
			log.Warnf("⚠️ Failed to queue startup refresh: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

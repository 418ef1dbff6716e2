package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trove/catalog/internal/cache"
	"trove/catalog/internal/client"
	"trove/catalog/internal/domain"
	"trove/catalog/internal/domain/task"
	"trove/catalog/internal/queue"
	"trove/catalog/internal/repository"
)

const (
	defaultMaxRefreshAttempts = 5
	defaultRetryDelay         = 30 * time.Second
)

type Options struct {
	GroupName          string
	MinIdleTime        time.Duration
	MaxRefreshAttempts int
	RetryDelay         time.Duration
}

// Service owns the classifier catalog: it reads through the cache and the
// store, refreshes from the upstream catalog and runs the refresh workers.
type Service struct {
	repository repository.ClassifierRepository
	client     client.CatalogClient
	cache      cache.CatalogCache
	queue      queue.Queue

	groupName          string
	minIdleTime        time.Duration
	maxRefreshAttempts int
	retryDelay         time.Duration

	refreshMu sync.Mutex
}

func NewService(
	repository repository.ClassifierRepository,
	client client.CatalogClient,
	cache cache.CatalogCache,
	queue queue.Queue,
	opts Options,
) *Service {
	if opts.MaxRefreshAttempts <= 0 {
		opts.MaxRefreshAttempts = defaultMaxRefreshAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.MinIdleTime <= 0 {
		opts.MinIdleTime = 2 * time.Minute
	}

	return &Service{
		repository:         repository,
		client:             client,
		cache:              cache,
		queue:              queue,
		groupName:          opts.GroupName,
		minIdleTime:        opts.MinIdleTime,
		maxRefreshAttempts: opts.MaxRefreshAttempts,
		retryDelay:         opts.RetryDelay,
	}
}

// Classifiers returns the current catalog from the cache, then the store, and
// finally from the upstream catalog.
func (s *Service) Classifiers(ctx context.Context) (*domain.Catalog, error) {
	cached, _, err := s.cache.Load(ctx)
	if err != nil {
		log.Warnf("⚠️ Catalog cache unavailable: %v", err)
	}
	if cached.Len() > 0 {
		return cached, nil
	}

	stored, err := s.repository.ListCatalog(ctx)
	if err != nil {
		log.Warnf("⚠️ Catalog store unavailable: %v", err)
	}
	if stored.Len() > 0 {
		if err := s.cache.Store(ctx, stored); err != nil {
			log.Warnf("⚠️ Failed to repopulate catalog cache: %v", err)
		}
		return stored, nil
	}

	catalog, err := s.Refresh(ctx, false)
	if catalog.Len() > 0 {
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	return nil, domain.ErrCatalogUnavailable
}

// Refresh pulls the catalog from upstream unless a cooldown is in effect and
// force is false. On upstream failure the last good catalog is returned
// together with the error, so callers can keep serving it.
func (s *Service) Refresh(ctx context.Context, force bool) (*domain.Catalog, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cached, cooling, err := s.cache.Load(ctx)
	if err != nil {
		log.Warnf("⚠️ Catalog cache unavailable: %v", err)
	}
	if !force && cooling && cached.Len() > 0 {
		log.Debugf("Refresh skipped: cooldown in effect")
		return cached, nil
	}

	fetched, err := s.client.FetchClassifiers(ctx)
	if err != nil {
		fallback := cached
		if fallback.Len() == 0 {
			fallback, _ = s.repository.ListCatalog(ctx)
		}
		log.Warnf("⚠️ Catalog refresh failed, keeping %d known classifiers: %v", fallback.Len(), err)
		return fallback, fmt.Errorf("failed to refresh catalog: %w", err)
	}

	storedDigest, err := s.repository.StoredDigest(ctx)
	if err != nil {
		log.Warnf("⚠️ Catalog store unavailable, rewriting catalog: %v", err)
	}

	if storedDigest == fetched.Digest() {
		log.Debugf("Catalog unchanged (%d classifiers)", fetched.Len())
	} else {
		// The cache and its cooldown are only written once the store holds
		// the same snapshot, otherwise a retry would be served the cache.
		if err := s.repository.ReplaceCatalog(ctx, fetched); err != nil {
			persistErr := fmt.Errorf("failed to store catalog: %w", err)
			log.Errorf("❌ %v", persistErr)
			return fetched, persistErr
		}
		log.Infof("✅ Stored catalog with %d classifiers from %s", fetched.Len(), fetched.Source)
	}

	if err := s.cache.Store(ctx, fetched); err != nil {
		log.Warnf("⚠️ Failed to cache catalog: %v", err)
	}

	return fetched, nil
}

// RequestRefresh queues a refresh for the workers and returns its task id.
func (s *Service) RequestRefresh(ctx context.Context, reason string, force bool) (string, error) {
	t := &task.RefreshCatalogTask{
		ID:          uuid.NewString(),
		RequestedAt: time.Now().UTC(),
		Force:       force,
		Reason:      reason,
	}
	if _, err := s.queue.AddTask(ctx, t); err != nil {
		return "", fmt.Errorf("failed to queue catalog refresh: %w", err)
	}

	log.Infof("🔄 Queued catalog refresh %s (%s)", t.ID, reason)
	return t.ID, nil
}

// RunScheduler queues a refresh every interval until ctx is done.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RequestRefresh(ctx, "scheduled", false); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("❌ Failed to schedule catalog refresh: %v", err)
			}
		}
	}
}

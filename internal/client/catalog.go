package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"trove/catalog/internal/config"
	"trove/catalog/internal/domain"
	"trove/catalog/internal/proxy"
)

const (
	defaultCircuitBreakerDelay = 30 * time.Minute
	// Consecutive throttled responses before the circuit opens.
	defaultCircuitBreakerThreshold = 3
)

// CatalogClient fetches the classifier list from the upstream catalog.
type CatalogClient interface {
	FetchClassifiers(ctx context.Context) (*domain.Catalog, error)
}

type catalogClient struct {
	rl            ratelimit.Limiter
	url           string
	timeout       time.Duration
	httpClient    *resty.Client
	parser        *classifierParser
	proxySupplier proxy.Supplier

	// Circuit breaker for upstream throttling
	circuitBreakerMutex     sync.RWMutex
	throttledUntil          time.Time
	circuitBreakerDelay     time.Duration
	circuitBreakerThreshold int
	consecutiveThrottles    int
}

func NewCatalogClient(cfg config.CatalogConfig, proxySupplier proxy.Supplier) CatalogClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(2*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", "trove-catalog/1.0").
		SetHeader("Accept", "text/plain, text/html;q=0.9, */*;q=0.5")

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	return &catalogClient{
		rl:                      ratelimit.New(cfg.MaxRequestsPerSecond),
		url:                     cfg.URL(),
		timeout:                 timeout,
		httpClient:              client,
		parser:                  newClassifierParser(),
		proxySupplier:           proxySupplier,
		circuitBreakerDelay:     defaultCircuitBreakerDelay,
		circuitBreakerThreshold: defaultCircuitBreakerThreshold,
	}
}

func (c *catalogClient) FetchClassifiers(ctx context.Context) (*domain.Catalog, error) {
	body, contentType, err := c.fetch(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch classifier catalog: %w", err)
	}

	classifiers, err := c.parser.Parse(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classifier catalog: %w", err)
	}

	log.Debugf("Fetched %d classifiers from %s", len(classifiers), c.url)
	return &domain.Catalog{
		Classifiers: classifiers,
		FetchedAt:   time.Now().UTC(),
		Source:      c.url,
	}, nil
}

func (c *catalogClient) isCircuitBreakerOpen() bool {
	c.circuitBreakerMutex.RLock()
	now := time.Now()
	wasOpen := now.Before(c.throttledUntil)
	wasTriggered := !c.throttledUntil.IsZero()
	c.circuitBreakerMutex.RUnlock()

	if !wasOpen && wasTriggered {
		c.circuitBreakerMutex.Lock()
		// Double-check after acquiring write lock
		if !c.throttledUntil.IsZero() && now.After(c.throttledUntil) {
			c.throttledUntil = time.Time{}
			log.Infof("✅ Circuit breaker closed - upstream requests are allowed again")
		}
		c.circuitBreakerMutex.Unlock()
	}

	return wasOpen
}

// recordThrottle counts a throttled response and opens the circuit once the
// threshold is reached. It reports whether the circuit is now open.
func (c *catalogClient) recordThrottle() bool {
	c.circuitBreakerMutex.Lock()
	defer c.circuitBreakerMutex.Unlock()

	c.consecutiveThrottles++
	if c.consecutiveThrottles < c.circuitBreakerThreshold {
		log.Warnf("⚠️ Upstream throttled %d/%d times in a row", c.consecutiveThrottles, c.circuitBreakerThreshold)
		return false
	}

	c.consecutiveThrottles = 0
	c.throttledUntil = time.Now().Add(c.circuitBreakerDelay)
	log.Warnf("🚫 Circuit breaker activated! Upstream requests disabled until %v",
		c.throttledUntil.Format("15:04:05"))
	return true
}

func (c *catalogClient) resetThrottles() {
	c.circuitBreakerMutex.Lock()
	c.consecutiveThrottles = 0
	c.circuitBreakerMutex.Unlock()
}

func (c *catalogClient) remainingCircuitBreakerTime() time.Duration {
	c.circuitBreakerMutex.RLock()
	defer c.circuitBreakerMutex.RUnlock()

	remaining := time.Until(c.throttledUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func isThrottled(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == http.StatusServiceUnavailable
}

func (c *catalogClient) fetch(ctx context.Context, url string) (string, string, error) {
	if c.isCircuitBreakerOpen() {
		remaining := c.remainingCircuitBreakerTime()
		log.Debugf("🚫 Request blocked by circuit breaker. Remaining time: %v", remaining.Round(time.Second))
		return "", "", fmt.Errorf("%w: requests disabled for %v more", domain.ErrCircuitOpen, remaining.Round(time.Second))
	}

	c.rl.Take()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.httpClient.R().
		SetContext(reqCtx).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return "", "", fmt.Errorf("failed to fetch URL: %w", err)
	}

	if isThrottled(resp) {
		log.Warnf("🚫 Upstream throttled request for %s: %s", url, resp.Status())

		if c.proxySupplier != nil {
			if newProxy := c.proxySupplier.Get(); newProxy != "" {
				log.Infof("🔄 Switching to new proxy: %s", newProxy)
				c.httpClient.SetProxy(newProxy)

				retryResp, retryErr := c.httpClient.R().
					SetContext(reqCtx).
					Get(url)
				if retryErr == nil && !retryResp.IsError() {
					log.Infof("✅ Retry successful with new proxy")
					c.resetThrottles()
					return retryResp.String(), retryResp.Header().Get("Content-Type"), nil
				}
			}
		}

		if c.recordThrottle() {
			return "", "", fmt.Errorf("%w: upstream returned %d", domain.ErrCircuitOpen, resp.StatusCode())
		}
		return "", "", fmt.Errorf("upstream throttled: %d", resp.StatusCode())
	}

	c.resetThrottles()

	if resp.IsError() {
		return "", "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	return resp.String(), resp.Header().Get("Content-Type"), nil
}

// IsCircuitOpen reports whether err came from a suspended client.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen)
}

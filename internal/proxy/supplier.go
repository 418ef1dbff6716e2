package proxy

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// maxConcurrentProbes bounds how many proxies are probed at once.
const maxConcurrentProbes = 50

// Supplier hands out upstream proxies in round-robin order.
type Supplier interface {
	Get() string
	Len() int
}

type supplier struct {
	proxies []string
	next    int
	mu      sync.Mutex
}

// NewSupplier probes every configured proxy against probeURL and keeps the
// ones that answer. Probe order does not matter; the surviving proxies keep
// their configured order.
func NewSupplier(ctx context.Context, proxies []string, probeURL string) Supplier {
	return newSupplier(ctx, proxies, func(ctx context.Context, proxyURL string) bool {
		return probe(ctx, proxyURL, probeURL)
	})
}

func newSupplier(ctx context.Context, proxies []string, healthy func(context.Context, string) bool) *supplier {
	if len(proxies) == 0 {
		return &supplier{}
	}

	log.Infof("🔄 Probing %d proxies...", len(proxies))

	ok := make([]bool, len(proxies))
	semaphore := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup

	for i, proxyURL := range proxies {
		wg.Add(1)
		go func(index int, proxyURL string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ok[index] = healthy(ctx, proxyURL)
			if ok[index] {
				log.Debugf("✅ Proxy %s is working", proxyURL)
			} else {
				log.Infof("❌ Proxy %s is not working, skipping", proxyURL)
			}
		}(i, proxyURL)
	}
	wg.Wait()

	valid := make([]string, 0, len(proxies))
	for i, proxyURL := range proxies {
		if ok[i] {
			valid = append(valid, proxyURL)
		}
	}

	log.Infof("✅ Proxy supplier ready with %d of %d proxies", len(valid), len(proxies))
	return &supplier{proxies: valid}
}

// Get returns the next proxy URL, or "" when none are available.
func (s *supplier) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.proxies) == 0 {
		return ""
	}

	proxyURL := s.proxies[s.next]
	s.next = (s.next + 1) % len(s.proxies)
	return proxyURL
}

func (s *supplier) Len() int {
	return len(s.proxies)
}

func probe(ctx context.Context, proxyURL, probeURL string) bool {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL)

	resp, err := client.R().
		SetContext(ctx).
		Head(probeURL)
	if err != nil {
		log.Debugf("Proxy probe failed for %s: %v", proxyURL, err)
		return false
	}
	if resp.IsError() {
		log.Debugf("Proxy probe failed for %s with status: %s", proxyURL, resp.Status())
		return false
	}

	return true
}

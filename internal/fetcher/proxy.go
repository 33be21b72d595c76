package fetcher

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/config"
)

// ProxyRotator hands out outbound proxies in round-robin or random order.
// A proxy marked failed is skipped until its cooldown passes.
type ProxyRotator struct {
	proxies  []*proxyEntry
	random   bool
	cooldown time.Duration
	index    atomic.Int64
	mu       sync.Mutex
	now      func() time.Time
	logger   *slog.Logger
}

type proxyEntry struct {
	url         *url.URL
	failedUntil time.Time
}

// NewProxyRotator parses cfg.URLs. It returns nil when no proxy is
// configured, and a nil rotator means direct connections.
func NewProxyRotator(cfg config.ProxyConfig, logger *slog.Logger) (*ProxyRotator, error) {
	if len(cfg.URLs) == 0 {
		return nil, nil
	}

	pr := &ProxyRotator{
		random:   cfg.Rotation == "random",
		cooldown: 5 * time.Minute,
		now:      time.Now,
		logger:   logger.With("component", "proxy_rotator"),
	}
	for _, raw := range cfg.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
		}
		pr.proxies = append(pr.proxies, &proxyEntry{url: u})
	}

	pr.logger.Info("proxy rotation enabled", "count", len(pr.proxies), "random", pr.random)
	return pr, nil
}

// Next returns the next usable proxy. When every proxy is cooling down the
// rotation ignores the cooldown rather than going direct.
func (pr *ProxyRotator) Next() *url.URL {
	if pr == nil {
		return nil
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()

	usable := make([]*proxyEntry, 0, len(pr.proxies))
	now := pr.now()
	for _, p := range pr.proxies {
		if !now.Before(p.failedUntil) {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		usable = pr.proxies
	}

	if pr.random {
		return usable[rand.IntN(len(usable))].url
	}
	idx := (pr.index.Add(1) - 1) % int64(len(usable))
	return usable[idx].url
}

// ProxyFunc adapts the rotator to http.Transport.Proxy.
func (pr *ProxyRotator) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		return pr.Next(), nil
	}
}

// MarkFailed puts a proxy on cooldown.
func (pr *ProxyRotator) MarkFailed(proxy *url.URL, err error) {
	if pr == nil || proxy == nil {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()

	for _, p := range pr.proxies {
		if p.url.String() == proxy.String() {
			p.failedUntil = pr.now().Add(pr.cooldown)
			pr.logger.Warn("proxy cooling down", "proxy", proxy.Host, "until", p.failedUntil, "error", err)
			return
		}
	}
}

// Len returns the number of configured proxies.
func (pr *ProxyRotator) Len() int {
	if pr == nil {
		return 0
	}
	return len(pr.proxies)
}

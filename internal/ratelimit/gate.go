// Package ratelimit is the shared RPC gate every component that talks to
// the chain goes through: a single token bucket (shared across balance
// reads and trade submissions, per spec) plus endpoint health tracking
// and round-robin selection across multiple RPC providers.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/metrics"
	"golang.org/x/time/rate"
)

// Gate is the single choke point all RPC traffic passes through.
type Gate struct {
	limiter   *rate.Limiter
	endpoints []*endpoint
	current   int
	mutex     sync.RWMutex
	logger    zerolog.Logger
}

type endpoint struct {
	url           string
	healthy       bool
	cooldownUntil time.Time
	mutex         sync.RWMutex
}

// New builds a Gate with one shared token bucket (sustained reqs/sec,
// burst) and the given set of RPC endpoint URLs for round-robin
// selection and independent health tracking.
func New(sustained float64, burst int, urls []string, logger zerolog.Logger) *Gate {
	endpoints := make([]*endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = &endpoint{url: url, healthy: true}
		metrics.SetRPCEndpointHealth(url, true)
	}

	return &Gate{
		limiter:   rate.NewLimiter(rate.Limit(sustained), burst),
		endpoints: endpoints,
		current:   rand.Intn(max(len(endpoints), 1)),
		logger:    logger.With().Str("component", "ratelimit_gate").Logger(),
	}
}

// Wait blocks until the shared token bucket admits the caller or ctx is
// cancelled. Every balance read and every trade submission calls this
// before making an RPC request, so the two classes of traffic can never
// starve each other of the bucket.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RateLimiterWaitSeconds.Observe(time.Since(start).Seconds())
	}()
	return g.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately without blocking.
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}

// NextEndpoint returns the next healthy, non-cooldown endpoint in
// round-robin order, waiting on the caller's behalf if every endpoint
// is currently in cooldown.
func (g *Gate) NextEndpoint(ctx context.Context) (string, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.endpoints) == 0 {
		return "", fmt.Errorf("ratelimit: no RPC endpoints configured")
	}

	attempts := 0
	for attempts < len(g.endpoints) {
		ep := g.endpoints[g.current]
		g.current = (g.current + 1) % len(g.endpoints)
		attempts++

		ep.mutex.RLock()
		inCooldown := time.Now().Before(ep.cooldownUntil)
		healthy := ep.healthy
		ep.mutex.RUnlock()

		if healthy && !inCooldown {
			return ep.url, nil
		}
	}

	// Every endpoint is unhealthy or cooling down; fall back to the
	// one with the soonest cooldown expiry rather than failing outright.
	best := g.endpoints[0]
	for _, ep := range g.endpoints[1:] {
		ep.mutex.RLock()
		betterMutex := ep.cooldownUntil
		ep.mutex.RUnlock()
		best.mutex.RLock()
		bestUntil := best.cooldownUntil
		best.mutex.RUnlock()
		if betterMutex.Before(bestUntil) {
			best = ep
		}
	}

	best.mutex.RLock()
	wait := time.Until(best.cooldownUntil)
	best.mutex.RUnlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return best.url, nil
}

// MarkUnhealthy marks an endpoint as unhealthy after a connection or protocol failure.
func (g *Gate) MarkUnhealthy(url string) {
	g.withEndpoint(url, func(ep *endpoint) {
		ep.healthy = false
		metrics.SetRPCEndpointHealth(url, false)
		g.logger.Warn().Str("endpoint", url).Msg("marked endpoint unhealthy")
	})
}

// MarkHealthy clears unhealthy and cooldown state after a successful request.
func (g *Gate) MarkHealthy(url string) {
	g.withEndpoint(url, func(ep *endpoint) {
		ep.healthy = true
		ep.cooldownUntil = time.Time{}
		metrics.SetRPCEndpointHealth(url, true)
	})
}

// SetCooldown puts an endpoint in cooldown for the given duration, typically after a 429/503.
func (g *Gate) SetCooldown(url string, duration time.Duration) {
	g.withEndpoint(url, func(ep *endpoint) {
		ep.cooldownUntil = time.Now().Add(duration)
		g.logger.Warn().Str("endpoint", url).Dur("duration", duration).Msg("set endpoint cooldown")
	})
}

// HealthyEndpointCount reports how many endpoints are currently usable.
func (g *Gate) HealthyEndpointCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	count := 0
	for _, ep := range g.endpoints {
		ep.mutex.RLock()
		if ep.healthy && time.Now().After(ep.cooldownUntil) {
			count++
		}
		ep.mutex.RUnlock()
	}
	return count
}

func (g *Gate) withEndpoint(url string, fn func(*endpoint)) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	for _, ep := range g.endpoints {
		if ep.url == url {
			ep.mutex.Lock()
			fn(ep)
			ep.mutex.Unlock()
			return
		}
	}
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter rejects calls above a global and optional per-method rate.
// Rejected calls get a RateLimited error response; the connection stays open.
type RateLimiter struct {
	mu sync.RWMutex
	// Global limiter for all calls
	global *rate.Limiter
	// Per-method limiters
	methods map[string]*rate.Limiter
}

// RateLimitConfig defines rate limiting settings
type RateLimitConfig struct {
	// Global calls per second; zero or less disables the global limit
	GlobalRPS float64
	// Burst size for global limit
	GlobalBurst int
	// Per-method RPS limits
	MethodRPS map[string]float64
	// Per-method burst limits
	MethodBurst map[string]int
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		methods: make(map[string]*rate.Limiter),
	}
	if cfg.GlobalRPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), max(cfg.GlobalBurst, 1))
	}

	for method, rps := range cfg.MethodRPS {
		burst := cfg.MethodBurst[method]
		rl.methods[method] = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}

	return rl
}

// Allow reports, without blocking, whether a call to method may proceed.
func (rl *RateLimiter) Allow(method string) error {
	if rl.global != nil && !rl.global.Allow() {
		return newError(KindRateLimited, nil, "too many calls")
	}

	rl.mu.RLock()
	limiter, exists := rl.methods[method]
	rl.mu.RUnlock()

	if exists && !limiter.Allow() {
		return newError(KindRateLimited, nil, "too many calls to %q", method)
	}
	return nil
}

// UpdateMethodLimit updates the rate limit for a specific method
func (rl *RateLimiter) UpdateMethodLimit(method string, rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.methods[method] = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}

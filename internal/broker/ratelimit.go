// ratelimit.go implements token-bucket rate limiting for the brokerage API.
//
// The brokerage enforces 200 requests per rolling minute across the account.
// This file provides a smooth token-bucket implementation that refills
// continuously (rather than in 60s bursts) to stay clear of the hard limit,
// split across categories so a burst of status polls cannot starve a cancel.
//
// Three buckets are maintained:
//   - Order:  10 burst / 1 per sec
//   - Cancel: 10 burst / 1 per sec
//   - Query:  30 burst / 1 per sec (account + order status reads)
package broker

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by brokerage endpoint category.
// Each call must go through the appropriate bucket's Wait() before
// making the HTTP request.
type RateLimiter struct {
	Order  *TokenBucket // POST /v2/orders
	Cancel *TokenBucket // DELETE /v2/orders/{id}
	Query  *TokenBucket // GET /v2/account, GET /v2/orders/{id}
}

// NewRateLimiter creates rate limiters that together stay under the
// account-wide 200/min ceiling.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:  NewTokenBucket(10, 1),
		Cancel: NewTokenBucket(10, 1),
		Query:  NewTokenBucket(30, 1),
	}
}

package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter keeps one token bucket per key, such as a caller id
type KeyedLimiter struct {
	limiters   map[string]*TokenBucket
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	now        func() time.Time
	cleanup    *time.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewKeyedLimiter creates a limiter and starts the loop that drops idle buckets
func NewKeyedLimiter(maxTokens, refillRate float64) *KeyedLimiter {
	l := &KeyedLimiter{
		limiters:   make(map[string]*TokenBucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		now:        time.Now,
		cleanup:    time.NewTicker(10 * time.Minute),
		stopChan:   make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow checks if a request for key can proceed
func (l *KeyedLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// RetryAfter estimates how long key must wait for its next token
func (l *KeyedLimiter) RetryAfter(key string) time.Duration {
	return l.getLimiter(key).RetryAfter()
}

func (l *KeyedLimiter) getLimiter(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = newTokenBucket(l.maxTokens, l.refillRate, l.now)
		l.limiters[key] = limiter
	}
	return limiter
}

// Evict drops buckets that have refilled completely; they are indistinguishable from new ones
func (l *KeyedLimiter) Evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, limiter := range l.limiters {
		if limiter.full() {
			delete(l.limiters, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked keys
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *KeyedLimiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.C:
			l.Evict()
		case <-l.stopChan:
			l.cleanup.Stop()
			return
		}
	}
}

// Stop stops the cleanup loop
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

package service

import (
	"sync"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

// JourneyCache holds computed journeys until the product's chain changes.
// A generation counter per product keeps a slow reader from caching a journey
// that an append invalidated while it was being computed.
type JourneyCache struct {
	mu      sync.RWMutex
	entries map[string]*models.ProductJourney
	gen     map[string]uint64
}

// NewJourneyCache creates an empty cache
func NewJourneyCache() *JourneyCache {
	return &JourneyCache{
		entries: make(map[string]*models.ProductJourney),
		gen:     make(map[string]uint64),
	}
}

// Get returns a copy of the cached journey, if any
func (c *JourneyCache) Get(productID string) (*models.ProductJourney, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	j, ok := c.entries[productID]
	if !ok {
		return nil, false
	}
	return copyJourney(j), true
}

// Generation returns the current generation of productID
func (c *JourneyCache) Generation(productID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.gen[productID]
}

// Put stores j if no invalidation happened since gen was read
func (c *JourneyCache) Put(productID string, gen uint64, j *models.ProductJourney) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen[productID] != gen {
		return false
	}

	c.entries[productID] = copyJourney(j)
	return true
}

// Invalidate drops the cached journey of productID
func (c *JourneyCache) Invalidate(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen[productID]++
	delete(c.entries, productID)
}

// Len reports the number of cached journeys
func (c *JourneyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// copyJourney copies j and its records. Nested record fields such as Metadata stay shared.
func copyJourney(j *models.ProductJourney) *models.ProductJourney {
	c := *j
	c.Records = make([]*models.TraceabilityRecord, len(j.Records))
	for i, r := range j.Records {
		rc := *r
		c.Records[i] = &rc
	}
	return &c
}

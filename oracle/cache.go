package oracle

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one cached USD price.
type Entry struct {
	Key        string
	Value      decimal.Decimal
	InsertedAt time.Time
	TTL        time.Duration
}

// IsStale reports whether the entry has outlived its TTL at now.
func (e Entry) IsStale(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(e.TTL))
}

// PriceCache holds USD prices keyed by currency symbol. The same symbol on
// different networks shares one entry.
type PriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Entry
	nowFn   func() time.Time
}

// NewPriceCache creates a cache whose entries expire after ttl.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]Entry),
		nowFn:   time.Now,
	}
}

// Get returns the entry for symbol and whether it is still fresh. A stale
// entry is returned too, so callers can fall back to it.
func (c *PriceCache) Get(symbol string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[cacheKey(symbol)]
	if !ok {
		return Entry{}, false
	}
	return e, !e.IsStale(c.nowFn())
}

// Put stores a fresh price for symbol.
func (c *PriceCache) Put(symbol string, value decimal.Decimal) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{
		Key:        cacheKey(symbol),
		Value:      value,
		InsertedAt: c.nowFn(),
		TTL:        c.ttl,
	}
	c.entries[e.Key] = e
	return e
}

// Len returns the number of entries, stale ones included.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

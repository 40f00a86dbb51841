package application

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/event-board/internal/geocode"
)

// CachedGeocoder remembers recent lookups so repeated postings and updates at
// the same place do not hit the upstream geocoder again. Failed lookups are
// not cached.
type CachedGeocoder struct {
	inner      Geocoder
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]geocodeCacheEntry
}

type geocodeCacheEntry struct {
	result    geocode.Result
	expiresAt time.Time
}

// NewCachedGeocoder wraps inner with a bounded TTL cache.
func NewCachedGeocoder(inner Geocoder, ttl time.Duration, maxEntries int, now func() time.Time) *CachedGeocoder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &CachedGeocoder{
		inner:      inner,
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]geocodeCacheEntry),
	}
}

// Forward resolves an address, serving repeated addresses from the cache.
func (c *CachedGeocoder) Forward(ctx context.Context, address string) (geocode.Result, error) {
	key := "f|" + strings.ToLower(strings.Join(strings.Fields(address), " "))
	return c.lookup(key, func() (geocode.Result, error) {
		return c.inner.Forward(ctx, address)
	})
}

// Reverse resolves a point, serving repeated points from the cache. Points are
// keyed at six decimals, the precision change records use.
func (c *CachedGeocoder) Reverse(ctx context.Context, lat, lon float64) (geocode.Result, error) {
	key := "r|" + strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
	return c.lookup(key, func() (geocode.Result, error) {
		return c.inner.Reverse(ctx, lat, lon)
	})
}

func (c *CachedGeocoder) lookup(key string, fetch func() (geocode.Result, error)) (geocode.Result, error) {
	if result, ok := c.get(key); ok {
		return result, nil
	}
	result, err := fetch()
	if err != nil {
		return geocode.Result{}, err
	}
	c.store(key, result)
	return result, nil
}

func (c *CachedGeocoder) get(key string) (geocode.Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return geocode.Result{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return geocode.Result{}, false
	}
	return entry.result, true
}

func (c *CachedGeocoder) store(key string, result geocode.Result) {
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = geocodeCacheEntry{result: result, expiresAt: expiry}
}

// Invalidate drops every cached lookup.
func (c *CachedGeocoder) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]geocodeCacheEntry)
	c.mu.Unlock()
}

func (c *CachedGeocoder) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *CachedGeocoder) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

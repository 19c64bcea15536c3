package directory

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/codeGROOVE-dev/tzcompare/pkg/clocksource"
)

const cacheFile = "directory-cache.gob"

// CacheEntry is a cached directory record.
type CacheEntry struct {
	ExpiresAt time.Time
	City      City
}

// Cache holds directory records for a fixed TTL. Expiry is judged by the
// injected clock, so tests can move time forward without sleeping.
type Cache struct {
	cache  *otter.Cache[string, CacheEntry]
	clock  clocksource.Clock
	logger *slog.Logger
	dir    string
	ttl    time.Duration
	mu     sync.Mutex
}

// NewCache returns a memory-only cache. clock may be nil for the system clock.
func NewCache(ttl time.Duration, clock clocksource.Clock, logger *slog.Logger) *Cache {
	if clock == nil {
		clock = clocksource.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cache: otter.Must(&otter.Options[string, CacheEntry]{
			MaximumSize:      10_000,
			InitialCapacity:  256,
			ExpiryCalculator: otter.ExpiryWriting[string, CacheEntry](ttl),
		}),
		clock:  clock,
		logger: logger,
		ttl:    ttl,
	}
}

// NewDiskCache returns a cache that loads entries from dir and writes them
// back on Close.
func NewDiskCache(dir string, ttl time.Duration, clock clocksource.Clock, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := NewCache(ttl, clock, logger)
	c.dir = dir
	if err := c.loadFromDisk(); err != nil {
		c.logger.Warn("failed to load cache from disk", "error", err)
	}
	c.logger.Debug("cache initialized", "dir", dir, "entries_loaded", c.cache.EstimatedSize())
	return c, nil
}

// Get returns the cached record for name, if present and not expired.
func (c *Cache) Get(name string) (*City, bool) {
	key := foldKey(name)
	entry, found := c.cache.GetIfPresent(key)
	if !found {
		c.logger.Debug("cache miss", "city", name, "reason", "not_found")
		return nil, false
	}
	if !c.clock.Now().Before(entry.ExpiresAt) {
		c.logger.Debug("cache miss", "city", name, "reason", "expired", "expired_at", entry.ExpiresAt)
		c.cache.Invalidate(key)
		return nil, false
	}
	city := entry.City
	return &city, true
}

// Set stores city under name.
func (c *Cache) Set(name string, city *City) {
	entry := CacheEntry{City: *city, ExpiresAt: c.clock.Now().Add(c.ttl)}
	c.cache.Set(foldKey(name), entry)
	c.logger.Debug("cache set", "city", name, "expires_at", entry.ExpiresAt)
}

// Len returns the approximate number of entries.
func (c *Cache) Len() int {
	return c.cache.EstimatedSize()
}

// Close writes the cache to disk if it has a directory.
func (c *Cache) Close() error {
	if c.dir == "" {
		return nil
	}
	if err := c.saveToDisk(); err != nil {
		c.logger.Error("final cache save failed", "error", err)
		return err
	}
	return nil
}

func (c *Cache) loadFromDisk() error {
	cachePath := filepath.Join(c.dir, cacheFile)

	file, err := os.Open(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("failed to close cache file", "error", closeErr)
		}
	}()

	var entries map[string]CacheEntry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}

	now := c.clock.Now()
	valid := 0
	for key, entry := range entries {
		if now.Before(entry.ExpiresAt) {
			c.cache.Set(key, entry)
			valid++
		}
	}
	c.logger.Debug("loaded cache from disk", "path", cachePath, "total_entries", len(entries), "valid_entries", valid)
	return nil
}

func (c *Cache) saveToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cachePath := filepath.Join(c.dir, cacheFile)
	tempPath := cachePath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Debug("failed to remove temp file", "error", removeErr)
		}
	}()

	entries := make(map[string]CacheEntry)
	now := c.clock.Now()
	for key, entry := range c.cache.All() {
		if now.Before(entry.ExpiresAt) {
			entries[key] = entry
		}
	}

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		_ = file.Close() //nolint:errcheck // already failing
		return fmt.Errorf("encoding cache to file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close() //nolint:errcheck // already failing
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, cachePath); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	c.logger.Debug("cache saved to disk", "entries", len(entries), "path", cachePath)
	return nil
}

// Cached wraps a Source with a Cache. Only successful lookups are cached.
type Cached struct {
	src   Source
	cache *Cache
}

// NewCached returns src fronted by cache.
func NewCached(src Source, cache *Cache) *Cached {
	return &Cached{src: src, cache: cache}
}

// Lookup implements Source.
func (c *Cached) Lookup(ctx context.Context, name string) (*City, error) {
	if city, ok := c.cache.Get(name); ok {
		return city, nil
	}
	city, err := c.src.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache.Set(name, city)
	return city, nil
}

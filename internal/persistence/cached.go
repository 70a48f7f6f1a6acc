package persistence

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const versionStripes = 64

// Cached puts a cache (usually Redis) in front of a durable KV. Cache
// failures are logged and never fail a call.
//
// Every write bumps a version for its key. A read fills the cache only if the
// version it saw before reading durably is still current, so a fill never
// restores a value a later write invalidated. Versions are per process.
type Cached struct {
	durable  KV
	cache    Cache
	sfg      singleflight.Group // one durable read per key at a time
	versions [versionStripes]keyVersion
	logger   *slog.Logger
}

type keyVersion struct {
	mu sync.Mutex
	n  uint64
}

func NewCached(durable KV, cache Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		durable: durable,
		cache:   cache,
		logger:  logger,
	}
}

func (c *Cached) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := c.cache.Read(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.logger.Warn("cache get error", "key", key, "error", err)
	}

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		ver := c.version(key)
		seen := ver.current()

		data, err := c.durable.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		c.fill(ver, seen, key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Write stores value durably, then invalidates the cached copy.
func (c *Cached) Write(ctx context.Context, key string, value []byte) error {
	if err := c.durable.Write(ctx, key, value); err != nil {
		return err
	}
	c.invalidate(key)
	return nil
}

func (c *Cached) fill(ver *keyVersion, seen uint64, key string, data []byte) {
	ver.mu.Lock()
	defer ver.mu.Unlock()
	if ver.n != seen {
		c.logger.Debug("cache fill skipped, key written meanwhile", "key", key)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.cache.Write(ctx, key, data); err != nil {
		c.logger.Warn("cache set error", "key", key, "error", err)
	}
}

func (c *Cached) invalidate(key string) {
	ver := c.version(key)
	ver.mu.Lock()
	defer ver.mu.Unlock()
	ver.n++
	c.sfg.Forget(key)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidate error", "key", key, "error", err)
	}
}

// version returns the stripe guarding key; keys sharing a stripe only cost
// each other a skipped fill.
func (c *Cached) version(key string) *keyVersion {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.versions[h.Sum32()%versionStripes]
}

func (v *keyVersion) current() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.n
}

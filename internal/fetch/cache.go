// Package fetch retrieves wiki pages by route, serving them from a page
// cache when possible and from the live site otherwise.
package fetch

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/redis/go-redis/v9"
)

// CacheHost prefixes every cache key.
const CacheHost = "wiki.biligame.com"

// Cache stores raw pages by key.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Has(ctx context.Context, key string) bool
}

// CacheKey maps a route such as "/ys/角色" onto its cache file name.
func CacheKey(route string) string {
	return CacheHost + strings.ReplaceAll(route, "/", "_") + ".html"
}

// keyVariants returns key followed by its percent-decoded form when the two
// differ.
func keyVariants(key string) []string {
	unquoted, err := url.PathUnescape(key)
	if err != nil || unquoted == key {
		return []string{key}
	}
	return []string{key, unquoted}
}

// DiskCache keeps one file per page under a directory.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ec.ErrCacheError.Clone().
			WithDetails("failed to create cache dir " + dir).
			Warp(err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) Get(_ context.Context, key string) ([]byte, error) {
	for _, name := range keyVariants(key) {
		data, err := os.ReadFile(filepath.Join(c.dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !isNameError(err) {
			return nil, ec.ErrCacheError.Clone().
				WithDetails("failed to read " + name).
				Warp(err)
		}
	}
	return nil, ec.ErrCacheMiss.Clone().WithDetails(key)
}

// Put writes the percent-encoded name first and falls back to the decoded
// name when the file system rejects it.
func (c *DiskCache) Put(_ context.Context, key string, data []byte) error {
	var lastErr error
	for _, name := range keyVariants(key) {
		if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return ec.ErrCacheError.Clone().
		WithDetails("failed to write " + key).
		Warp(lastErr)
}

func (c *DiskCache) Has(ctx context.Context, key string) bool {
	for _, name := range keyVariants(key) {
		if _, err := os.Stat(filepath.Join(c.dir, name)); err == nil {
			return true
		}
	}
	return false
}

// isNameError reports errors caused by file names the OS cannot represent,
// such as ENAMETOOLONG for long percent-encoded routes.
func isNameError(err error) bool {
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		return false
	}
	return strings.Contains(pe.Err.Error(), "file name too long") ||
		strings.Contains(pe.Err.Error(), "invalid argument")
}

// RedisCache keeps pages in redis under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache on client. A zero ttl keeps pages forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ec.ErrCacheMiss.Clone().WithDetails(key)
	}
	if err != nil {
		return nil, ec.ErrCacheError.Clone().
			WithDetails("redis get " + key).
			Warp(err)
	}
	return data, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return ec.ErrCacheError.Clone().
			WithDetails("redis set " + key).
			Warp(err)
	}
	return nil
}

func (c *RedisCache) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	return err == nil && n > 0
}

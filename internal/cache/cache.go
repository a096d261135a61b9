// Package cache is the query cache shared by the views of one process. Values
// are stored as JSON under string keys, optionally mirrored to disk so that
// short-lived CLI invocations share entries and invalidations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/logger"
)

type entry struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	// gens counts invalidations per key
	gens      map[string]uint64
	listeners map[int]func(keys []string)
	nextID    int

	ttl       time.Duration
	now       func() time.Time
	namespace string
	disk      *diskv.Diskv
}

type Option func(*Cache)

// WithTTL sets how long an entry stays fresh. Zero keeps entries until they
// are invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithNamespace prefixes every key, typically with the user id.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

// WithDisk mirrors entries to dir.
func WithDisk(dir string) Option {
	return func(c *Cache) {
		c.disk = diskv.New(diskv.Options{
			BasePath:     dir,
			CacheSizeMax: 1024 * 1024,
		})
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]entry),
		gens:      make(map[string]uint64),
		listeners: make(map[int]func(keys []string)),
		ttl:       constants.CacheTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) storageKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + "_" + key
}

func (c *Cache) fresh(e entry) bool {
	return c.ttl <= 0 || c.now().Sub(e.FetchedAt) < c.ttl
}

func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e, c.fresh(e)
	}
	if c.disk == nil {
		return entry{}, false
	}

	raw, err := c.disk.Read(c.storageKey(key))
	if err != nil {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		_ = c.disk.Erase(c.storageKey(key))
		return entry{}, false
	}
	c.entries[key] = e
	return e, c.fresh(e)
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// store saves data unless key was invalidated after gen was read.
func (c *Cache) store(key string, gen uint64, data []byte) bool {
	e := entry{Data: data, FetchedAt: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.entries[key] = e
	if c.disk == nil {
		return true
	}
	raw, err := json.Marshal(e)
	if err == nil {
		err = c.disk.Write(c.storageKey(key), raw)
	}
	if err != nil {
		logger.Warn("failed to persist cache entry", "key", key, "error", err)
	}
	return true
}

// Fetch returns the cached value for key, calling load when the key is
// missing, stale or invalidated. Load errors are returned as is and leave the
// cache untouched. A load that overlaps an invalidation of key is returned to
// the caller but not cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	gen := c.generation(key)
	if e, ok := c.lookup(key); ok {
		var v T
		if err := json.Unmarshal(e.Data, &v); err == nil {
			return v, nil
		}
		logger.Debug("cache entry does not decode, reloading", "key", key)
	}

	v, err := load(ctx)
	if err != nil {
		return zero, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if !c.store(key, gen, data) {
		logger.Debug("cache key invalidated during load, not storing", "key", key)
	}
	return v, nil
}

// Cached reports whether key currently holds a fresh value.
func (c *Cache) Cached(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Invalidate drops the given keys and notifies listeners.
func (c *Cache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	for _, key := range keys {
		c.gens[key]++
		delete(c.entries, key)
		if c.disk != nil {
			if err := c.disk.Erase(c.storageKey(key)); err != nil && !isNotExist(err) {
				logger.Warn("failed to erase cache entry", "key", key, "error", err)
			}
		}
	}
	listeners := make([]func([]string), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	logger.Debug("cache invalidated", "keys", strings.Join(keys, ","))
	for _, fn := range listeners {
		fn(keys)
	}
}

// OnInvalidate registers fn to run after every invalidation. The returned
// function removes it.
func (c *Cache) OnInvalidate(fn func(keys []string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

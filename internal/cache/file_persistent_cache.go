package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
)

// FilePersistentCache is a file-backed cache that survives restarts. Values
// must be JSON-serializable; non-serializable entries are silently dropped
// on save.
type FilePersistentCache struct {
	store    map[string]persistentItem
	mutex    sync.RWMutex
	ttl      time.Duration
	filePath string
}

type persistentItem struct {
	Value      interface{} `json:"value"`
	Expiration int64       `json:"expiration"`
}

// NewFilePersistentCache creates a persistent cache with a default TTL,
// loading any previously saved state from filePath.
func NewFilePersistentCache(defaultTTL time.Duration, filePath string) *FilePersistentCache {
	c := &FilePersistentCache{
		store:    make(map[string]persistentItem),
		ttl:      defaultTTL,
		filePath: filePath,
	}
	c.loadFromFile()
	go c.cleanupLoop(10 * time.Minute)
	return c
}

func (c *FilePersistentCache) loadFromFile() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &c.store); err != nil {
		log.Warn().Str("path", c.filePath).Err(err).Msg("discarding unreadable cache file")
		c.store = make(map[string]persistentItem)
	}
}

// saveToFile is called with the mutex held.
func (c *FilePersistentCache) saveToFile() {
	data, err := json.Marshal(c.store)
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize cache state")
		return
	}
	if err := os.WriteFile(c.filePath, data, 0o644); err != nil {
		log.Warn().Str("path", c.filePath).Err(err).Msg("failed to persist cache state")
	}
}

// Get retrieves an item from the cache.
func (c *FilePersistentCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[key]
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if time.Now().UnixNano() > item.Expiration {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return item.Value, nil
}

// Set adds or updates an item and persists the store.
func (c *FilePersistentCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store[key] = persistentItem{
		Value:      value,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.saveToFile()
	return nil
}

func (c *FilePersistentCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := time.Now().UnixNano()
		changed := false
		for key, item := range c.store {
			if now > item.Expiration {
				delete(c.store, key)
				changed = true
			}
		}
		if changed {
			c.saveToFile()
		}
		c.mutex.Unlock()
	}
}

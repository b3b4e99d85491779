// Package cache implements C5: a two-tier idempotent response cache. The
// memory tier is an LRU of bounded capacity; misses fall through to the
// SQLite-backed persistent tier, which is repopulated into memory on hit.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/pkg/pool"
)

// bufPool recycles the scratch buffer BuildKey encodes params into; every
// cache lookup and write goes through BuildKey, so this sits on the hottest
// allocation path in C5.
var bufPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Store is the persistence seam; internal/store.CacheStore implements it.
type Store interface {
	Get(ctx context.Context, key string, nowMs int64) (*domain.CacheEntry, bool)
	Put(ctx context.Context, e domain.CacheEntry, createdAtMs int64) error
	RecordHit(ctx context.Context, key string, nowMs int64) error
	// DeleteMatching removes rows whose serverID/cacheType/toolName match the
	// given filters (an empty filter imposes no constraint on that field) and
	// reports how many rows were removed.
	DeleteMatching(ctx context.Context, serverID, cacheType, toolName string) (int64, error)
	PurgeExpired(ctx context.Context, nowMs int64) (int64, error)
}

type Cache struct {
	memory     *lru.Cache[string, domain.CacheEntry]
	store      Store
	defaultTTL time.Duration
	now        func() time.Time

	purgeInterval time.Duration
	stop          chan struct{}
}

func New(memoryCapacity int, store Store, defaultTTL, purgeInterval time.Duration) (*Cache, error) {
	memory, err := lru.New[string, domain.CacheEntry](memoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	c := &Cache{
		memory:        memory,
		store:         store,
		defaultTTL:    defaultTTL,
		now:           time.Now,
		purgeInterval: purgeInterval,
		stop:          make(chan struct{}),
	}
	go c.purgeLoop()
	return c, nil
}

// paramsHashLen is the number of hex characters of the SHA-256 digest kept
// in the cache key — a full digest buys nothing once the type/server/tool
// prefix already disambiguates the key space.
const paramsHashLen = 16

// BuildKey derives the "<type>:<serverId>:<toolName>:<paramsHash>" cache key.
// paramsHash is the literal "none" for empty/nil params, otherwise the first
// paramsHashLen hex characters of the SHA-256 digest over params encoded as
// JSON (encoding/json sorts map keys, so the digest is stable regardless of
// caller-supplied map order).
func BuildKey(cacheType domain.CacheEntryType, serverID, toolName string, params map[string]any) (key, paramsHash string, err error) {
	if len(params) == 0 {
		paramsHash = "none"
	} else {
		buf := bufPool.Get()
		defer bufPool.Put(buf)

		if err := json.NewEncoder(buf).Encode(params); err != nil {
			return "", "", fmt.Errorf("marshal cache params: %w", err)
		}
		sum := sha256.Sum256(buf.Bytes())
		paramsHash = hex.EncodeToString(sum[:])[:paramsHashLen]
	}
	return fmt.Sprintf("%s:%s:%s:%s", cacheType, serverID, toolName, paramsHash), paramsHash, nil
}

func (c *Cache) Get(ctx context.Context, cacheType domain.CacheEntryType, serverID, toolName string, params map[string]any) ([]byte, bool) {
	key, _, err := BuildKey(cacheType, serverID, toolName, params)
	if err != nil {
		return nil, false
	}
	nowMs := c.now().UnixMilli()

	if entry, ok := c.memory.Get(key); ok {
		if entry.ExpiresAt <= nowMs {
			c.memory.Remove(key)
			return nil, false
		}
		return entry.Value, true
	}

	entry, ok := c.store.Get(ctx, key, nowMs)
	if !ok {
		return nil, false
	}
	c.memory.Add(key, *entry)
	_ = c.store.RecordHit(ctx, key, nowMs)
	return entry.Value, true
}

func (c *Cache) Set(ctx context.Context, cacheType domain.CacheEntryType, serverID, toolName string, params map[string]any, value []byte, ttl int) error {
	key, paramsHash, err := BuildKey(cacheType, serverID, toolName, params)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = int(c.defaultTTL.Seconds())
	}
	now := c.now()
	entry := domain.CacheEntry{
		Key:        key,
		Type:       cacheType,
		ServerID:   serverID,
		ToolName:   toolName,
		ParamsHash: paramsHash,
		Value:      value,
		TTLSeconds: ttl,
		ExpiresAt:  now.Add(time.Duration(ttl) * time.Second).UnixMilli(),
	}
	c.memory.Add(key, entry)
	return c.store.Put(ctx, entry, now.UnixMilli())
}

// Invalidate deletes every persistent-tier row matching the given filters
// (serverID, cacheType, toolName — an empty string imposes no constraint on
// that field) and clears the memory tier only if that delete actually
// removed something. The memory tier carries no server/type/tool index to
// filter by, so a scan-and-filter pass over it is rejected as error-prone in
// favour of gating a full purge on the persistent-tier delete count.
func (c *Cache) Invalidate(ctx context.Context, serverID, cacheType, toolName string) error {
	n, err := c.store.DeleteMatching(ctx, serverID, cacheType, toolName)
	if err != nil {
		return err
	}
	if n > 0 {
		c.memory.Purge()
	}
	return nil
}

func (c *Cache) purgeLoop() {
	ticker := time.NewTicker(c.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = c.store.PurgeExpired(context.Background(), c.now().UnixMilli())
		case <-c.stop:
			return
		}
	}
}

// Close stops background purging.
func (c *Cache) Close() error {
	close(c.stop)
	return nil
}

package classify

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores a classification Result for a TTL window. A hit never
// touches the LLM transport, and is excluded from transport retry/timeout
// accounting — it is a pure memoization layer in front of Classifier.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, result Result, ttl time.Duration)
}

// CachedClassifier wraps a Classifier with a Cache, keyed by QueryKey.
type CachedClassifier struct {
	Inner Classifier
	Cache Cache
	TTL   time.Duration
}

func (c *CachedClassifier) Classify(ctx context.Context, query string, domains []string) (Result, error) {
	key := QueryKey(query)
	if cached, ok := c.Cache.Get(ctx, key); ok {
		return cached, nil
	}
	result, err := c.Inner.Classify(ctx, query, domains)
	if err != nil {
		return result, err
	}
	c.Cache.Set(ctx, key, result, c.TTL)
	return result, nil
}

type lruEntry struct {
	key     string
	result  Result
	expires time.Time
}

// LRUCache is an in-process, size-bounded cache for single-worker
// deployments. Expired entries are evicted lazily on Get.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewLRUCache returns an LRUCache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRUCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (c *LRUCache) Get(ctx context.Context, key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return Result{}, false
	}
	entry := el.Value.(*lruEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.index, key)
		return Result{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *LRUCache) Set(ctx context.Context, key string, result Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*lruEntry).result = result
		el.Value.(*lruEntry).expires = time.Now().Add(ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&lruEntry{key: key, result: result, expires: time.Now().Add(ttl)})
	c.index[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*lruEntry).key)
		}
	}
}

// RedisCache shares classification results across a worker fleet.
type RedisCache struct {
	Client *redis.Client
	Prefix string
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	data, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result Result, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.Client.Set(ctx, c.Prefix+key, data, ttl)
}

package xttl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

// maxCapacity 缓存最大条目数上限。
const maxCapacity = 1 << 24 // 16,777,216

// 默认配置，与站点数据的刷新节奏一致
const (
	DefaultCapacity = 1000
	DefaultTTL      = 10 * time.Minute
)

// Config 定义缓存配置。
type Config struct {
	// Capacity 缓存最大条目数，必须大于 0 且不超过 16,777,216。
	Capacity int `koanf:"capacity"`

	// TTL 条目最大存活时间，必须大于 0。
	TTL time.Duration `koanf:"ttl"`
}

// DefaultConfig 返回默认配置（1000 条，10 分钟）。
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, TTL: DefaultTTL}
}

// entry 缓存条目。payload 写入后只读；valid 为 false 表示值无法编码。
type entry struct {
	payload    []byte
	valid      bool
	insertedAt time.Time
}

// Stats 缓存运行统计。
type Stats struct {
	Len             int    `json:"len"`
	Capacity        int    `json:"capacity"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Evictions       uint64 `json:"evictions"`
	Expirations     uint64 `json:"expirations"`
	Unrepresentable uint64 `json:"unrepresentable"`
}

// eviction 锁内收集、锁外回调的淘汰事件
type eviction struct {
	key    string
	reason EvictReason
}

// Cache 是容量有界的 FIFO TTL 缓存。
// 必须通过 [New] 创建，所有方法并发安全。
type Cache struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, entry]
	capacity int
	ttl      time.Duration

	clock              clockwork.Clock
	logger             xlog.Logger
	preloadConcurrency int
	onEvicted          func(key string, reason EvictReason)

	hits            atomic.Uint64
	misses          atomic.Uint64
	evictions       atomic.Uint64
	expirations     atomic.Uint64
	unrepresentable atomic.Uint64
}

// New 创建缓存。
// cfg.Capacity <= 0 返回 ErrInvalidCapacity，超过上限返回 ErrCapacityExceedsMax，
// cfg.TTL <= 0 返回 ErrInvalidTTL。
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.Capacity > maxCapacity {
		return nil, ErrCapacityExceedsMax
	}
	if cfg.TTL <= 0 {
		return nil, ErrInvalidTTL
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return &Cache{
		entries:            orderedmap.New[string, entry](),
		capacity:           cfg.Capacity,
		ttl:                cfg.TTL,
		clock:              o.clock,
		logger:             o.logger,
		preloadConcurrency: o.preloadConcurrency,
		onEvicted:          o.onEvicted,
	}, nil
}

// Get 读取 key 并解码为 V。
//
// 键不存在、已过期、值不可表示或无法解码为 V 时返回零值和 false。
// 过期条目在此时被删除。Get 不改变淘汰顺序。
func Get[V any](c *Cache, key string) (V, bool) {
	var zero V
	payload, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(payload, &v); err != nil {
		c.logger.Debug(context.Background(), "xttl: decode cached value failed",
			xlog.Key(key), xlog.Err(err))
		return zero, false
	}
	return v, true
}

// Contains 报告 key 是否存在且可被 Get 命中（未过期、值可表示）。
// 与 Get 相同，过期条目在此时被删除；不计入命中统计。
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	e, ok, expired := c.peekLocked(key)
	c.mu.Unlock()
	if expired {
		c.notify([]eviction{{key: key, reason: EvictExpired}})
	}
	return ok && e.valid
}

// lookup 取出未过期条目的编码值，并维护命中统计
func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok, expired := c.peekLocked(key)
	c.mu.Unlock()

	if expired {
		c.notify([]eviction{{key: key, reason: EvictExpired}})
	}
	if !ok || !e.valid {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.payload, true
}

// peekLocked 查找条目；过期则删除并报告 expired。调用方必须持有 c.mu。
func (c *Cache) peekLocked(key string) (e entry, ok, expired bool) {
	e, ok = c.entries.Get(key)
	if !ok {
		return entry{}, false, false
	}
	if c.isExpired(e) {
		c.entries.Delete(key)
		c.expirations.Add(1)
		return entry{}, false, true
	}
	return e, true, false
}

func (c *Cache) isExpired(e entry) bool {
	return c.clock.Since(e.insertedAt) > c.ttl
}

// Set 写入 key。
//
//   - 新键且缓存已满：先淘汰最早插入的一个条目，再插入
//   - 已存在的键：替换值并重置插入时间，淘汰位置不变
//   - 值无法编码：写入不可表示的占位条目，返回 false
//
// 返回值表示值是否被成功编码并缓存。Set 不会 panic。
func (c *Cache) Set(key string, value any) bool {
	payload, err := encode(value)
	valid := err == nil
	if !valid {
		c.unrepresentable.Add(1)
		c.logger.Warn(context.Background(), "xttl: value is not representable, caching placeholder",
			xlog.Key(key), xlog.Err(err))
		payload = nil
	}

	c.mu.Lock()
	var evicted []eviction
	if _, exists := c.entries.Get(key); !exists {
		for c.entries.Len() >= c.capacity {
			oldest := c.entries.Oldest()
			if oldest == nil {
				break
			}
			c.entries.Delete(oldest.Key)
			c.evictions.Add(1)
			evicted = append(evicted, eviction{key: oldest.Key, reason: EvictCapacity})
		}
	}
	c.entries.Set(key, entry{payload: payload, valid: valid, insertedAt: c.clock.Now()})
	c.mu.Unlock()

	c.notify(evicted)
	return valid
}

// encode JSON 编码；json.Marshal 对不支持的类型返回错误，此处额外兜住自定义 Marshaler 的 panic
func encode(value any) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return json.Marshal(value)
}

// Delete 删除条目，返回 key 是否存在。
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Delete(key)
	return ok
}

// Clear 清空所有条目。幂等，不触发淘汰回调，不重置统计。
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = orderedmap.New[string, entry]()
	c.mu.Unlock()
}

// PurgeExpired 主动删除所有已过期条目，返回删除数量。
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	var expired []eviction
	for pair := c.entries.Oldest(); pair != nil; {
		next := pair.Next()
		if c.isExpired(pair.Value) {
			c.entries.Delete(pair.Key)
			c.expirations.Add(1)
			expired = append(expired, eviction{key: pair.Key, reason: EvictExpired})
		}
		pair = next
	}
	c.mu.Unlock()

	c.notify(expired)
	return len(expired)
}

// Len 返回当前条目数（可能包含尚未被访问的过期条目）。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity 返回容量上限。
func (c *Cache) Capacity() int {
	return c.capacity
}

// TTL 返回条目最大存活时间。
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Keys 按插入顺序（最旧在前）返回所有键。
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Stats 返回统计快照。
func (c *Cache) Stats() Stats {
	return Stats{
		Len:             c.Len(),
		Capacity:        c.capacity,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		Expirations:     c.expirations.Load(),
		Unrepresentable: c.unrepresentable.Load(),
	}
}

func (c *Cache) notify(events []eviction) {
	if c.onEvicted == nil {
		return
	}
	for _, ev := range events {
		c.onEvicted(ev.key, ev.reason)
	}
}

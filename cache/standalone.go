package cache

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/xerrors"
)

// entry 进程内缓存条目：保存原始对象与写入元数据，整体替换、从不原地修改
type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

type standaloneCache struct {
	cache          *otter.Cache[string, entry]
	maxStaleFactor int
	logger         clog.Logger
	counters       cacheCounters

	hits      atomic.Int64
	misses    atomic.Int64
	staleHits atomic.Int64
	sets      atomic.Int64

	now func() time.Time
}

// retentionCeiling 条目未指定 TTL 时的兜底保留时间
const retentionCeiling = 24 * time.Hour

// newStandalone 创建单机内存缓存实例
func newStandalone(cfg *Config, logger clog.Logger, meter metrics.Meter) (Cache, error) {
	opts := &otter.Options[string, entry]{
		MaximumSize:   cfg.Standalone.Capacity,
		StatsRecorder: stats.NewCounter(),
		// 写入过期策略（与 Redis TTL 语义一致）：过期从写入起算，读取不重置。
		// 实际过期时间在 Set 时按 MaxStaleFactor*TTL 覆盖
		ExpiryCalculator: otter.ExpiryWriting[string, entry](retentionCeiling),
	}

	c, err := otter.New(opts)
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: failed to build otter cache")
	}

	return &standaloneCache{
		cache:          c,
		maxStaleFactor: cfg.MaxStaleFactor,
		logger:         logger,
		counters:       newCacheCounters(meter, "standalone"),
		now:            time.Now,
	}, nil
}

func (c *standaloneCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.cache.Set(key, entry{
		value:    value,
		storedAt: c.now(),
		ttl:      ttl,
	})

	// 后端保留 MaxStaleFactor*TTL，为陈旧兜底读取留出窗口
	if ttl > 0 {
		c.cache.SetExpiresAfter(key, ttl*time.Duration(c.maxStaleFactor))
	}
	c.sets.Add(1)
	c.counters.set(ctx)
	return nil
}

func (c *standaloneCache) Get(ctx context.Context, key string, dest any) error {
	e, ok := c.cache.GetIfPresent(key)
	if !ok {
		c.misses.Add(1)
		c.counters.miss(ctx)
		return ErrCacheMiss
	}

	// 过了逻辑 TTL 的条目在新鲜路径上视同未命中
	if e.ttl > 0 && c.now().Sub(e.storedAt) >= e.ttl {
		c.misses.Add(1)
		c.counters.miss(ctx)
		return ErrCacheMiss
	}

	c.hits.Add(1)
	c.counters.hit(ctx)
	return assignValue(e.value, dest)
}

func (c *standaloneCache) GetStale(ctx context.Context, key string, dest any) (time.Duration, error) {
	e, ok := c.cache.GetIfPresent(key)
	if !ok {
		c.misses.Add(1)
		c.counters.miss(ctx)
		return 0, ErrCacheMiss
	}

	age := c.now().Sub(e.storedAt)
	if e.ttl > 0 && age >= e.ttl {
		c.staleHits.Add(1)
		c.counters.staleHit(ctx)
	} else {
		c.hits.Add(1)
		c.counters.hit(ctx)
	}
	return age, assignValue(e.value, dest)
}

func (c *standaloneCache) Has(ctx context.Context, key string) (bool, error) {
	e, ok := c.cache.GetIfPresent(key)
	if !ok {
		return false, nil
	}
	if e.ttl > 0 && c.now().Sub(e.storedAt) >= e.ttl {
		return false, nil
	}
	return true, nil
}

func (c *standaloneCache) Delete(ctx context.Context, key string) error {
	c.cache.Invalidate(key)
	return nil
}

func (c *standaloneCache) Clear(ctx context.Context) error {
	c.cache.InvalidateAll()
	return nil
}

func (c *standaloneCache) Stats() Snapshot {
	return Snapshot{
		EntryCount: int64(c.cache.EstimatedSize()),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		StaleHits:  c.staleHits.Load(),
		Sets:       c.sets.Load(),
	}
}

func (c *standaloneCache) Close() error {
	c.cache.StopAllGoroutines()
	return nil
}

// assignValue 将缓存中的原始对象赋给 dest 指向的位置。
// 【注意】这是基于反射的浅拷贝：若缓存对象含指针/map/slice，dest 与缓存共享底层数据，
// 调用方应将取出的对象视为只读。
func assignValue(val any, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer")
	}
	dv = dv.Elem()

	sv := reflect.ValueOf(val)
	if sv.Type().AssignableTo(dv.Type()) {
		dv.Set(sv)
		return nil
	}

	// 写入方存指针、读取方要值时解引用，指针/值不必对称
	if sv.Kind() == reflect.Ptr && !sv.IsNil() && sv.Elem().Type().AssignableTo(dv.Type()) {
		dv.Set(sv.Elem())
		return nil
	}

	// dest 为 interface{} 时接受任意值
	if dv.Kind() == reflect.Interface && sv.Type().Implements(dv.Type()) {
		dv.Set(sv)
		return nil
	}

	return fmt.Errorf("cannot assign cached value of type %T to dest of type %T", val, dest)
}

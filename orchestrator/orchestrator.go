// Package orchestrator 是数据源编排层的最上层协调者。
//
// 给定一个逻辑键和一组按优先级排列的数据源，编排器执行回退、合并或批量策略，
// 过程中依次协作：缓存命中直接短路返回；限流器和熔断器在每次数据源调用前把关；
// 重试执行器包裹实际的网络调用；成功结果写穿缓存；全部失败时退回陈旧缓存，
// 实在没有才返回空结果。数据源的日常故障从不以错误形式抛给调用方——
// 调用方总是拿到一个 FetchResult，通过 Data/Cached/Errors 判断降级程度。
//
// 基本使用：
//
//	orch, _ := orchestrator.New(registry, clients,
//	    orchestrator.WithCache(cacheClient),
//	    orchestrator.WithLogger(logger),
//	)
//
//	result := orch.FetchWithFallback(ctx, "AAPL",
//	    []string{"alphavantage", "finnhub"}, cache.TierFree)
//	if result.Data == nil {
//	    // result.Errors 记录了每个数据源失败的原因
//	}
package orchestrator

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ceyewan/findata/breaker"
	"github.com/ceyewan/findata/cache"
	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/ratelimit"
	"github.com/ceyewan/findata/xerrors"
)

// 特殊的结果来源，区别于具体数据源名
const (
	SourceCache  = "cache"
	SourceMerged = "merged"
)

// Metadata 一次编排调用的过程信息
type Metadata struct {
	// RequestID 本次调用的唯一标识，贯穿日志
	RequestID string `json:"request_id"`

	// ProvidersAttempted 实际尝试过的数据源（被剔除的不可用数据源不在内）
	ProvidersAttempted []string `json:"providers_attempted"`

	// TotalDuration 整个编排调用的耗时
	TotalDuration time.Duration `json:"total_duration"`

	// CircuitBreakerTriggered 过程中是否有数据源被熔断器拒绝
	CircuitBreakerTriggered bool `json:"circuit_breaker_triggered"`

	// Deduplicated 本次调用是否搭了同键并发请求的便车
	Deduplicated bool `json:"deduplicated"`
}

// FetchResult 编排调用的输出。Data 为 nil 时 Errors 必然非空
type FetchResult struct {
	Data     *provider.Record  `json:"data"`
	Source   string            `json:"source"`
	Cached   bool              `json:"cached"`
	Age      time.Duration     `json:"age"`
	Errors   []*provider.Error `json:"errors,omitempty"`
	Metadata Metadata          `json:"metadata"`
}

// BatchResult 批量编排调用的输出：逐键的成功记录与逐键的失败原因
type BatchResult struct {
	Data     map[string]*provider.Record `json:"data"`
	Errors   map[string]*provider.Error  `json:"errors,omitempty"`
	Metadata Metadata                    `json:"metadata"`
}

// MergeFunc 调用方提供的纯合并函数：输入按优先级排好序的成功结果，
// 输出合并后的记录。典型实现是"优先取高优先级数据源的非缺失字段"
type MergeFunc func(records []*provider.Record) *provider.Record

// Orchestrator 编排器。依赖全部在构造时注入，不同实例完全隔离
type Orchestrator struct {
	registry *provider.Registry
	clients  map[string]provider.Client

	cache   cache.Cache
	limiter ratelimit.Limiter
	breaker breaker.Breaker
	ttl     cache.TTLPolicy

	logger clog.Logger
	meter  metrics.Meter

	group            singleflight.Group
	batchConcurrency int

	fetchCounter    metrics.Counter
	cacheHitCounter metrics.Counter
	staleCounter    metrics.Counter
	durationHist    metrics.Histogram

	newID func() string
	now   func() time.Time
}

// New 创建编排器。registry 与 clients 必须提供；
// 缓存、限流器、熔断器未注入时使用单机默认实现。
// 构造时会按每个数据源的配置初始化限流与熔断参数
func New(registry *provider.Registry, clients []provider.Client, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, xerrors.New("orchestrator: registry is nil")
	}
	if len(clients) == 0 {
		return nil, xerrors.New("orchestrator: no clients")
	}

	opt := options{batchConcurrency: 4}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	o := &Orchestrator{
		registry:         registry,
		clients:          make(map[string]provider.Client, len(clients)),
		cache:            opt.cache,
		limiter:          opt.limiter,
		breaker:          opt.breaker,
		ttl:              opt.ttl,
		logger:           opt.logger,
		meter:            opt.meter,
		batchConcurrency: opt.batchConcurrency,
		newID:            newRequestID,
		now:              time.Now,
	}

	for _, c := range clients {
		if _, dup := o.clients[c.Name()]; dup {
			return nil, xerrors.Newf("orchestrator: duplicate client %q", c.Name())
		}
		if registry.Get(c.Name()) == nil {
			return nil, xerrors.Newf("orchestrator: client %q has no registry entry", c.Name())
		}
		o.clients[c.Name()] = c
	}

	if o.cache == nil {
		var err error
		o.cache, err = cache.New(&cache.Config{Mode: "standalone"}, cache.WithLogger(opt.logger))
		if err != nil {
			return nil, err
		}
	}
	if o.limiter == nil {
		var err error
		o.limiter, err = ratelimit.NewStandalone(ratelimit.WithLogger(opt.logger), ratelimit.WithMeter(opt.meter))
		if err != nil {
			return nil, err
		}
	}
	if o.breaker == nil {
		var err error
		o.breaker, err = breaker.New(&breaker.Config{},
			breaker.WithLogger(opt.logger), breaker.WithMeter(opt.meter))
		if err != nil {
			return nil, err
		}
	}
	if o.ttl == nil {
		o.ttl = cache.DefaultTTLPolicy()
	}

	// 把每个数据源的策略下发给限流器与熔断器
	for _, cfg := range registry.EnabledProviders() {
		o.limiter.Configure(cfg.Name, cfg.RateLimit)
		o.breaker.Configure(cfg.Name, &cfg.CircuitBreaker)
	}

	if opt.meter != nil {
		o.fetchCounter, _ = opt.meter.Counter(MetricFetches, "Number of orchestration calls")
		o.cacheHitCounter, _ = opt.meter.Counter(MetricCacheHits, "Number of fresh cache hits")
		o.staleCounter, _ = opt.meter.Counter(MetricStaleFallbacks, "Number of stale cache fallbacks")
		o.durationHist, _ = opt.meter.Histogram(MetricDuration, "Orchestration call duration in seconds")
	}

	return o, nil
}

// Stats 返回缓存统计与各数据源的熔断状态
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Cache:    o.cache.Stats(),
		Breakers: make(map[string]breaker.State),
	}
	for _, cfg := range o.registry.EnabledProviders() {
		s.Breakers[cfg.Name] = o.breaker.State(cfg.Name)
	}
	return s
}

// Stats 编排器运行期统计
type Stats struct {
	Cache    cache.Snapshot           `json:"cache"`
	Breakers map[string]breaker.State `json:"breakers"`
}

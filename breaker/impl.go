package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/metrics"
)

// providerState 单个提供商的熔断状态
// 不变式：state == StateOpen 时 openedAt 必然已设置
type providerState struct {
	mu  sync.Mutex
	cfg Config

	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	halfOpenProbes      int
}

// circuitBreaker 熔断器实现（非导出）
type circuitBreaker struct {
	defaults *Config
	logger   clog.Logger

	// 提供商级熔断状态管理
	states sync.Map // map[string]*providerState

	// 指标
	transitionCounter metrics.Counter
	rejectionCounter  metrics.Counter

	// 测试钩子，默认 time.Now
	now func() time.Time
}

// newBreaker 创建熔断器实例（内部函数）
func newBreaker(defaults *Config, logger clog.Logger, meter metrics.Meter) (Breaker, error) {
	cb := &circuitBreaker{
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}

	if meter != nil {
		cb.transitionCounter, _ = meter.Counter(MetricTransitions, "Number of circuit breaker state transitions")
		cb.rejectionCounter, _ = meter.Counter(MetricRejections, "Number of calls rejected by an open circuit breaker")
	}

	return cb, nil
}

// Configure 为指定提供商注册独立的熔断配置
func (cb *circuitBreaker) Configure(name string, cfg *Config) {
	if name == "" || cfg == nil {
		return
	}
	c := *cfg
	c.setDefaults()
	cb.states.Store(name, &providerState{cfg: c})
}

// Allow 查询指定提供商当前是否允许发起调用
func (cb *circuitBreaker) Allow(name string) bool {
	ps := cb.getState(name)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	switch ps.state {
	case StateClosed:
		return true

	case StateOpen:
		// 熔断超时后，下一次调用转入半开态探测，而不是直接拒绝
		if cb.now().Sub(ps.openedAt) >= ps.cfg.ResetTimeout {
			cb.transition(name, ps, StateHalfOpen)
			ps.halfOpenProbes = 1
			return true
		}
		cb.reject(name)
		return false

	case StateHalfOpen:
		// 半开状态下只放行有限的并发探测请求
		if ps.halfOpenProbes < ps.cfg.HalfOpenMaxRequests {
			ps.halfOpenProbes++
			return true
		}
		cb.reject(name)
		return false

	default:
		return false
	}
}

// RecordSuccess 报告一次成功调用
func (cb *circuitBreaker) RecordSuccess(name string) {
	ps := cb.getState(name)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	switch ps.state {
	case StateClosed:
		ps.consecutiveFailures = 0

	case StateHalfOpen:
		// 任一探测成功立即恢复
		cb.transition(name, ps, StateClosed)
		ps.consecutiveFailures = 0
		ps.halfOpenProbes = 0
		ps.openedAt = time.Time{}

	case StateOpen:
		// 打开状态下的迟到成功（探测期间已被其他失败重新熔断），忽略
	}
}

// RecordFailure 报告一次失败调用
func (cb *circuitBreaker) RecordFailure(name string) {
	ps := cb.getState(name)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.lastFailureAt = cb.now()

	switch ps.state {
	case StateClosed:
		ps.consecutiveFailures++
		if ps.consecutiveFailures >= ps.cfg.FailureThreshold {
			cb.transition(name, ps, StateOpen)
			ps.openedAt = cb.now()
		}

	case StateHalfOpen:
		// 任一探测失败立即回到 Open，并重置打开时刻
		cb.transition(name, ps, StateOpen)
		ps.openedAt = cb.now()
		ps.halfOpenProbes = 0

	case StateOpen:
		// 已熔断，仅更新最近失败时间
	}
}

// State 获取指定提供商的熔断器状态
func (cb *circuitBreaker) State(name string) State {
	ps := cb.getState(name)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state
}

// Snapshot 返回指定提供商的状态快照
func (cb *circuitBreaker) Snapshot(name string) Snapshot {
	ps := cb.getState(name)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		State:               ps.state,
		ConsecutiveFailures: ps.consecutiveFailures,
		LastFailureAt:       ps.lastFailureAt,
		OpenedAt:            ps.openedAt,
		HalfOpenProbes:      ps.halfOpenProbes,
	}
}

// getState 获取或创建指定提供商的熔断状态
func (cb *circuitBreaker) getState(name string) *providerState {
	if v, ok := cb.states.Load(name); ok {
		return v.(*providerState)
	}

	// 未注册的提供商使用默认配置（可能有并发创建，使用 LoadOrStore）
	actual, _ := cb.states.LoadOrStore(name, &providerState{cfg: *cb.defaults})
	return actual.(*providerState)
}

// transition 执行状态转移并记录日志与指标
// 调用方必须已持有 ps.mu
func (cb *circuitBreaker) transition(name string, ps *providerState, to State) {
	from := ps.state
	ps.state = to

	cb.logger.Info("circuit breaker state changed",
		clog.String("provider", name),
		clog.String("from", from.String()),
		clog.String("to", to.String()))

	if cb.transitionCounter != nil {
		cb.transitionCounter.Inc(context.Background(),
			metrics.L(LabelProvider, name),
			metrics.L(LabelFrom, from.String()),
			metrics.L(LabelTo, to.String()))
	}
}

// reject 记录一次被熔断拒绝的调用
func (cb *circuitBreaker) reject(name string) {
	if cb.rejectionCounter != nil {
		cb.rejectionCounter.Inc(context.Background(), metrics.L(LabelProvider, name))
	}
}

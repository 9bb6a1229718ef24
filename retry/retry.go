// Package retry 提供固定间隔的重试执行器。
//
// 设计刻意简单：固定间隔、无指数退避——上层的熔断器已经阻止了对持续故障
// 数据源的反复冲击，这里只需要抹平瞬时抖动。每次尝试可以带独立超时，
// 超时视为一次可重试的失败。
//
// 基本使用：
//
//	quote, err := retry.Do(ctx, retry.Policy{
//	    Attempts: 2,
//	    Delay:    200 * time.Millisecond,
//	    Timeout:  5 * time.Second,
//	}, func(ctx context.Context) (Quote, error) {
//	    return client.FetchOne(ctx, "AAPL")
//	})
package retry

import (
	"context"
	"time"

	"github.com/ceyewan/findata/xerrors"
)

// Policy 重试策略
type Policy struct {
	// Attempts 失败后的额外尝试次数，总尝试次数 = Attempts + 1
	Attempts int `json:"attempts" yaml:"attempts" mapstructure:"attempts"`

	// Delay 两次尝试之间的固定等待时间
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// Timeout 单次尝试的超时，0 表示不限制
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ErrInvalidPolicy 策略无效
var ErrInvalidPolicy = xerrors.New("retry: invalid policy")

// Do 执行 fn，失败后按策略重试，返回最后一次的错误。
// 传入 fn 的 context 带有单次尝试的超时；父 context 取消时立即停止重试。
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.Attempts < 0 {
		return zero, ErrInvalidPolicy
	}

	var lastErr error
	total := policy.Attempts + 1
	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 && policy.Delay > 0 {
			select {
			case <-time.After(policy.Delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, policy.Timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// 父 context 的取消不算可重试的失败
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// runAttempt 执行单次尝试，超时通过派生 context 传递给 fn
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

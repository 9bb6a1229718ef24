package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/findata/clog"
)

// HealthCheck 并发探测所有启用数据源的可达性，返回数据源名到探测结果的映射。
// 探测不经过限流与熔断闸门，也不影响熔断计数
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error)
	var mu sync.Mutex
	var g errgroup.Group

	for _, cfg := range o.registry.EnabledProviders() {
		client, ok := o.clients[cfg.Name]
		if !ok {
			continue
		}

		name := cfg.Name
		g.Go(func() error {
			err := client.HealthCheck(ctx)
			if err != nil {
				o.logger.Warn("provider health check failed",
					clog.String("provider", name),
					clog.Error(err))
			}
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

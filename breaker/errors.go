package breaker

import "github.com/ceyewan/findata/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrOpenState 熔断器处于打开状态
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)

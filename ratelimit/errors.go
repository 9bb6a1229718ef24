package ratelimit

import "github.com/ceyewan/findata/xerrors"

// 错误定义
var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("ratelimit: connector is nil")

	// ErrProviderEmpty 数据源名为空
	ErrProviderEmpty = xerrors.New("ratelimit: provider is empty")

	// ErrRateLimitExceeded 配额耗尽，供调用方用 errors.Is 识别限流拒绝
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
)

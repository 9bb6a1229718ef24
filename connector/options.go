package connector

import (
	"github.com/ceyewan/findata/clog"
)

type options struct {
	logger clog.Logger
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// applyDefaults 填充缺省依赖
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}

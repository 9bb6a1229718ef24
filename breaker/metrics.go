package breaker

// Metrics 指标常量定义
const (
	// MetricTransitions 状态转移次数 (Counter)
	MetricTransitions = "breaker_transitions_total"

	// MetricRejections 被熔断拒绝的调用次数 (Counter)
	MetricRejections = "breaker_rejections_total"

	// LabelProvider 提供商标签
	LabelProvider = "provider"

	// LabelFrom 转移前状态标签
	LabelFrom = "from"

	// LabelTo 转移后状态标签
	LabelTo = "to"
)

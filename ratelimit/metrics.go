package ratelimit

// Metrics 指标常量定义
const (
	// MetricAllowed 允许通过的请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"

	// LabelProvider 数据源标签
	LabelProvider = "provider"

	// LabelWindow 触发拒绝的窗口标签 (minute/day)
	LabelWindow = "window"
)

package cache

import (
	"sort"
	"strings"
)

// DataType 缓存数据类型，作为键的命名空间前缀
type DataType string

const (
	DataTypeQuote        DataType = "quote"
	DataTypeFundamentals DataType = "fundamentals"
	DataTypeBatchQuote   DataType = "batch_quote"
)

// Key 构造规范化缓存键：数据类型作为命名空间，符号列表去重、转大写并排序，
// 保证等价请求（如 ["msft","AAPL","AAPL"] 与 ["AAPL","MSFT"]）落在同一个键上。
func Key(dataType DataType, symbols ...string) string {
	normalized := NormalizeSymbols(symbols)
	return string(dataType) + ":" + strings.Join(normalized, ",")
}

// NormalizeSymbols 返回去重、去空白、转大写并按字典序排序后的符号列表
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

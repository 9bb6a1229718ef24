package provider

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Float 可缺失的数值字段：NaN 表示数据源没有给出该字段。
// JSON 编码时 NaN 写作 null，反向解码 null 还原为 NaN
type Float float64

// None 返回表示缺失的 Float
func None() Float {
	return Float(math.NaN())
}

// Missing 字段是否缺失
func (f Float) Missing() bool {
	return math.IsNaN(float64(f))
}

func (f Float) MarshalJSON() ([]byte, error) {
	if f.Missing() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*f = None()
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// ParseFloat 解析数据源返回的数值文本。
// "N/A"、"None"、"-"、空串等占位文本归一为缺失而非错误；尾部的 % 会被剥掉
func ParseFloat(s string) Float {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	switch strings.ToLower(s) {
	case "", "n/a", "na", "none", "null", "-":
		return None()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return None()
	}
	return Float(v)
}

// Record 所有数据源共用的归一化记录。
// 行情与基本面字段放在同一结构里：不同数据源各自填充自己有的字段，
// 合并策略按字段缺失情况跨数据源拼出更完整的记录
type Record struct {
	Symbol   string `json:"symbol" msgpack:"symbol"`
	Name     string `json:"name,omitempty" msgpack:"name"`
	Exchange string `json:"exchange,omitempty" msgpack:"exchange"`
	Currency string `json:"currency,omitempty" msgpack:"currency"`

	// 行情
	Price         Float `json:"price" msgpack:"price"`
	Open          Float `json:"open" msgpack:"open"`
	High          Float `json:"high" msgpack:"high"`
	Low           Float `json:"low" msgpack:"low"`
	PreviousClose Float `json:"previous_close" msgpack:"previous_close"`
	Change        Float `json:"change" msgpack:"change"`
	ChangePercent Float `json:"change_percent" msgpack:"change_percent"`
	Volume        Float `json:"volume" msgpack:"volume"`

	// 基本面
	MarketCap     Float `json:"market_cap" msgpack:"market_cap"`
	PERatio       Float `json:"pe_ratio" msgpack:"pe_ratio"`
	EPS           Float `json:"eps" msgpack:"eps"`
	DividendYield Float `json:"dividend_yield" msgpack:"dividend_yield"`

	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
	Source    string    `json:"source" msgpack:"source"`
}

// NewRecord 创建一条所有数值字段都标记为缺失的记录
func NewRecord(symbol, source string) *Record {
	return &Record{
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Source:        source,
		Price:         None(),
		Open:          None(),
		High:          None(),
		Low:           None(),
		PreviousClose: None(),
		Change:        None(),
		ChangePercent: None(),
		Volume:        None(),
		MarketCap:     None(),
		PERatio:       None(),
		EPS:           None(),
		DividendYield: None(),
	}
}

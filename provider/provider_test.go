package provider

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/findata/xerrors"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		missing bool
	}{
		{"普通数值", "185.5", 185.5, false},
		{"百分号后缀", "0.27%", 0.27, false},
		{"N/A 归一为缺失", "N/A", 0, true},
		{"None 归一为缺失", "None", 0, true},
		{"空串归一为缺失", "", 0, true},
		{"横线归一为缺失", "-", 0, true},
		{"非法文本归一为缺失", "abc", 0, true},
		{"带空白", " 42.0 ", 42.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFloat(tt.input)
			if tt.missing {
				assert.True(t, got.Missing())
			} else {
				assert.Equal(t, Float(tt.want), got)
			}
		})
	}
}

func TestFloat_JSONRoundTrip(t *testing.T) {
	type pair struct {
		Present Float `json:"present"`
		Absent  Float `json:"absent"`
	}

	data, err := json.Marshal(pair{Present: 1.5, Absent: None()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"present":1.5,"absent":null}`, string(data))

	var got pair
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, Float(1.5), got.Present)
	assert.True(t, got.Absent.Missing())
}

func TestNewRecord_AllNumericsMissing(t *testing.T) {
	r := NewRecord(" aapl ", "finnhub")

	assert.Equal(t, "AAPL", r.Symbol)
	assert.Equal(t, "finnhub", r.Source)
	assert.True(t, r.Price.Missing())
	assert.True(t, r.Volume.Missing())
	assert.True(t, r.MarketCap.Missing())
}

func TestClassify(t *testing.T) {
	t.Run("nil 错误", func(t *testing.T) {
		assert.Nil(t, Classify("p", nil))
	})

	t.Run("已分类的错误原样返回", func(t *testing.T) {
		orig := NewError("p", CodeCircuitOpen, "circuit open", nil)
		got := Classify("other", orig)
		assert.Same(t, orig, got)
	})

	t.Run("超时", func(t *testing.T) {
		got := Classify("p", context.DeadlineExceeded)
		assert.Equal(t, CodeTimeout, got.Code)
		assert.Equal(t, "p", got.Provider)
	})

	t.Run("上游限流", func(t *testing.T) {
		got := Classify("p", xerrors.Wrap(ErrRateLimited, "429"))
		assert.Equal(t, CodeRateLimited, got.Code)
	})

	t.Run("无数据", func(t *testing.T) {
		got := Classify("p", ErrNotFound)
		assert.Equal(t, CodeNotFound, got.Code)
	})

	t.Run("解析失败", func(t *testing.T) {
		got := Classify("p", xerrors.Wrap(ErrMalformedResponse, "unexpected json"))
		assert.Equal(t, CodeParseError, got.Code)
	})

	t.Run("网络错误", func(t *testing.T) {
		got := Classify("p", &net.OpError{Op: "dial", Err: xerrors.New("connection refused")})
		assert.Equal(t, CodeNetworkError, got.Code)
	})

	t.Run("网络超时优先归为超时", func(t *testing.T) {
		got := Classify("p", &timeoutErr{})
		assert.Equal(t, CodeTimeout, got.Code)
	})

	t.Run("未知错误", func(t *testing.T) {
		got := Classify("p", xerrors.New("something odd"))
		assert.Equal(t, CodeUnknown, got.Code)
	})
}

type timeoutErr struct{}

func (e *timeoutErr) Error() string   { return "i/o timeout" }
func (e *timeoutErr) Timeout() bool   { return true }
func (e *timeoutErr) Temporary() bool { return true }

func TestRegistry(t *testing.T) {
	newRegistry := func(t *testing.T) *Registry {
		r, err := NewRegistry([]*Config{
			{Name: "alphavantage", Enabled: true, Priority: 1, RequireAPIKey: true, APIKey: "key-a"},
			{Name: "finnhub", Enabled: true, Priority: 2, RequireAPIKey: true, APIKey: "key-f"},
			{Name: "twelvedata", Enabled: true, Priority: 1, RequireAPIKey: true, APIKey: "key-t"},
			{Name: "disabled", Enabled: false, Priority: 0},
			{Name: "keyless", Enabled: true, Priority: 0, RequireAPIKey: true},
		})
		require.NoError(t, err)
		return r
	}

	t.Run("重复名字报错", func(t *testing.T) {
		_, err := NewRegistry([]*Config{{Name: "a", Enabled: true}, {Name: "a", Enabled: true}})
		assert.Error(t, err)
	})

	t.Run("缺少名字报错", func(t *testing.T) {
		_, err := NewRegistry([]*Config{{Enabled: true}})
		assert.Error(t, err)
	})

	t.Run("启用列表保持注册顺序", func(t *testing.T) {
		r := newRegistry(t)
		names := make([]string, 0)
		for _, cfg := range r.EnabledProviders() {
			names = append(names, cfg.Name)
		}
		assert.Equal(t, []string{"alphavantage", "finnhub", "twelvedata", "keyless"}, names)
	})

	t.Run("按优先级排序且稳定", func(t *testing.T) {
		r := newRegistry(t)
		got := r.ByPriority([]string{"finnhub", "alphavantage", "twelvedata"})

		names := make([]string, 0)
		for _, cfg := range got {
			names = append(names, cfg.Name)
		}
		// alphavantage 与 twelvedata 同为优先级 1，按注册顺序决胜
		assert.Equal(t, []string{"alphavantage", "twelvedata", "finnhub"}, names)
	})

	t.Run("不可用数据源被剔除", func(t *testing.T) {
		r := newRegistry(t)
		got := r.ByPriority([]string{"disabled", "keyless", "finnhub"})
		require.Len(t, got, 1)
		assert.Equal(t, "finnhub", got[0].Name)
	})

	t.Run("可用性检查", func(t *testing.T) {
		r := newRegistry(t)
		assert.True(t, r.IsAvailable("alphavantage"))
		assert.False(t, r.IsAvailable("disabled"), "停用的数据源不可用")
		assert.False(t, r.IsAvailable("keyless"), "缺少必需 API Key 的数据源不可用")
		assert.False(t, r.IsAvailable("nonexistent"))
	})

	t.Run("默认值填充", func(t *testing.T) {
		r := newRegistry(t)
		cfg := r.Get("alphavantage")
		require.NotNil(t, cfg)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Equal(t, 1, cfg.BatchSize)
		assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	})
}

package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/findata/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&provider.Config{
		Name:      Name,
		Enabled:   true,
		APIKey:    "test-token",
		BaseURL:   srv.URL,
		BatchSize: 5,
	}, opts...)
	require.NoError(t, err)
	return c
}

const quoteBody = `{"c": 261.74, "d": 2.29, "dp": 0.88, "h": 263.31, "l": 260.68, "o": 261.07, "pc": 259.45, "t": 1756425600}`

func TestFetchOne(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Write([]byte(quoteBody))
	})

	rec, err := c.FetchOne(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, Name, rec.Source)
	assert.Equal(t, provider.Float(261.74), rec.Price)
	assert.Equal(t, provider.Float(259.45), rec.PreviousClose)
	assert.Equal(t, time.Unix(1756425600, 0), rec.UpdatedAt)
}

func TestFetchOne_ZeroResponseIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c": 0, "d": null, "dp": null, "h": 0, "l": 0, "o": 0, "pc": 0, "t": 0}`))
	})

	_, err := c.FetchOne(context.Background(), "NOPE")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestFetchOne_WithFundamentals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			w.Write([]byte(quoteBody))
		case "/stock/metric":
			assert.Equal(t, "all", r.URL.Query().Get("metric"))
			w.Write([]byte(`{"metric": {"marketCapitalization": 2900000, "peBasicExclExtraTTM": 28.1, "epsBasicExclExtraItemsTTM": null}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, WithFundamentals())

	rec, err := c.FetchOne(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, provider.Float(2900000), rec.MarketCap)
	assert.Equal(t, provider.Float(28.1), rec.PERatio)
	assert.True(t, rec.EPS.Missing(), "null 指标归一为缺失")
}

func TestFetchBatch_SequentialWithPartialMisses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "NOPE" {
			w.Write([]byte(`{"c": 0, "t": 0}`))
			return
		}
		w.Write([]byte(quoteBody))
	})

	got, err := c.FetchBatch(context.Background(), []string{"AAPL", "NOPE", "MSFT"})
	require.NoError(t, err)

	assert.Len(t, got, 2, "无数据的标的被跳过而不是使整批失败")
	assert.Contains(t, got, "AAPL")
	assert.Contains(t, got, "MSFT")
}

func TestFetchBatch_OverBatchSize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("不应发出网络请求")
	})
	c.cfg.BatchSize = 2

	_, err := c.FetchBatch(context.Background(), []string{"A", "B", "C"})
	assert.ErrorIs(t, err, provider.ErrBatchTooLarge)
}

func TestFetchBatch_AllFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchBatch(context.Background(), []string{"AAPL", "MSFT"})
	assert.ErrorIs(t, err, provider.ErrRateLimited)
}

func TestGet_HTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"429 归为限流", http.StatusTooManyRequests, provider.ErrRateLimited},
		{"404 归为无数据", http.StatusNotFound, provider.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.FetchOne(context.Background(), "AAPL")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

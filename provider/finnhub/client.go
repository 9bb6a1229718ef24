// Package finnhub 实现 Finnhub 数据源客户端。
//
// 行情走 /quote，基本面走 /stock/metric（可选）。Finnhub 没有批量行情接口，
// FetchBatch 按标的逐个请求。未知标的返回 c=0、t=0 的合法响应，归一为无数据。
package finnhub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/xerrors"
)

// Name 数据源标识
const Name = "finnhub"

// DefaultBaseURL Finnhub API 地址
const DefaultBaseURL = "https://finnhub.io/api/v1"

// Client Finnhub 客户端
type Client struct {
	cfg          *provider.Config
	baseURL      string
	httpClient   *http.Client
	logger       clog.Logger
	fundamentals bool
}

// Option 客户端选项函数
type Option func(*Client)

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithNamespace(Name)
		}
	}
}

// WithHTTPClient 覆盖默认 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithFundamentals 让 FetchOne 在行情之外额外拉取 /stock/metric 基本面
func WithFundamentals() Option {
	return func(c *Client) {
		c.fundamentals = true
	}
}

// New 创建客户端
func New(cfg *provider.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, xerrors.New("finnhub: config is nil")
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     clog.Discard(),
	}
	if cfg.BaseURL != "" {
		c.baseURL = cfg.BaseURL
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Name() string {
	return Name
}

// quoteResponse /quote 响应：字段名是单字母缩写
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

func (c *Client) FetchOne(ctx context.Context, symbol string) (*provider.Record, error) {
	body, err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}

	// 未知标的返回全零响应而非 404
	if resp.Timestamp == 0 && resp.Current == 0 {
		return nil, provider.ErrNotFound
	}

	rec := provider.NewRecord(symbol, Name)
	rec.Price = provider.Float(resp.Current)
	rec.Open = provider.Float(resp.Open)
	rec.High = provider.Float(resp.High)
	rec.Low = provider.Float(resp.Low)
	rec.PreviousClose = provider.Float(resp.PrevClose)
	rec.Change = provider.Float(resp.Change)
	rec.ChangePercent = provider.Float(resp.ChangePercent)
	rec.UpdatedAt = time.Unix(resp.Timestamp, 0)

	if c.fundamentals {
		if err := c.enrichMetrics(ctx, symbol, rec); err != nil {
			c.logger.Warn("metric fetch failed",
				clog.String("symbol", symbol),
				clog.Error(err))
		}
	}
	return rec, nil
}

// metricResponse /stock/metric 响应的关心字段
type metricResponse struct {
	Metric struct {
		MarketCap     *float64 `json:"marketCapitalization"`
		PERatio       *float64 `json:"peBasicExclExtraTTM"`
		EPS           *float64 `json:"epsBasicExclExtraItemsTTM"`
		DividendYield *float64 `json:"dividendYieldIndicatedAnnual"`
	} `json:"metric"`
}

func (c *Client) enrichMetrics(ctx context.Context, symbol string, rec *provider.Record) error {
	body, err := c.get(ctx, "/stock/metric", url.Values{
		"symbol": {symbol},
		"metric": {"all"},
	})
	if err != nil {
		return err
	}

	var resp metricResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}

	rec.MarketCap = maybe(resp.Metric.MarketCap)
	rec.PERatio = maybe(resp.Metric.PERatio)
	rec.EPS = maybe(resp.Metric.EPS)
	rec.DividendYield = maybe(resp.Metric.DividendYield)
	return nil
}

func maybe(v *float64) provider.Float {
	if v == nil {
		return provider.None()
	}
	return provider.Float(*v)
}

// FetchBatch 逐个请求；个别标的无数据不使整批失败，
// 全部失败时返回第一个错误
func (c *Client) FetchBatch(ctx context.Context, symbols []string) (map[string]*provider.Record, error) {
	if len(symbols) > c.cfg.BatchSize {
		return nil, xerrors.Wrapf(provider.ErrBatchTooLarge, "%d symbols > batch size %d", len(symbols), c.cfg.BatchSize)
	}

	out := make(map[string]*provider.Record, len(symbols))
	var firstErr error
	for _, symbol := range symbols {
		rec, err := c.FetchOne(ctx, symbol)
		if err != nil {
			if xerrors.Is(err, provider.ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[rec.Symbol] = rec
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.FetchOne(ctx, "AAPL")
	if err != nil && !xerrors.Is(err, provider.ErrNotFound) {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("token", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "finnhub: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, provider.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Newf("finnhub: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(err, "finnhub: read body")
	}
	return body, nil
}

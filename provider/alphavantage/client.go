// Package alphavantage 实现 Alpha Vantage 数据源客户端。
//
// 行情走 GLOBAL_QUOTE，基本面走 OVERVIEW（可选），批量行情走 REALTIME_BULK_QUOTES。
// Alpha Vantage 的所有数值都是字符串，缺失时给 "N/A" 或 "None"，解析时统一
// 归一为缺失而不是报错；配额耗尽时返回 200 但正文带 "Note"/"Information" 提示。
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/xerrors"
)

// Name 数据源标识
const Name = "alphavantage"

// DefaultBaseURL Alpha Vantage API 地址
const DefaultBaseURL = "https://www.alphavantage.co"

// Client Alpha Vantage 客户端
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

// WithFundamentals 让 FetchOne 在行情之外额外拉取 OVERVIEW 基本面。
// 每次调用多消耗一次 API 配额，按需开启
func WithFundamentals() Option {
	return func(c *Client) {
		c.fundamentals = true
	}
}

// New 创建客户端
func New(cfg *provider.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, xerrors.New("alphavantage: config is nil")
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

// globalQuoteResponse GLOBAL_QUOTE 响应：所有字段都是字符串
type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
}

func (c *Client) FetchOne(ctx context.Context, symbol string) (*provider.Record, error) {
	body, err := c.get(ctx, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
	})
	if err != nil {
		return nil, err
	}

	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return nil, err
	}
	if len(resp.GlobalQuote) == 0 {
		return nil, provider.ErrNotFound
	}

	q := resp.GlobalQuote
	rec := provider.NewRecord(symbol, Name)
	rec.Price = provider.ParseFloat(q["05. price"])
	rec.Open = provider.ParseFloat(q["02. open"])
	rec.High = provider.ParseFloat(q["03. high"])
	rec.Low = provider.ParseFloat(q["04. low"])
	rec.Volume = provider.ParseFloat(q["06. volume"])
	rec.PreviousClose = provider.ParseFloat(q["08. previous close"])
	rec.Change = provider.ParseFloat(q["09. change"])
	rec.ChangePercent = provider.ParseFloat(q["10. change percent"])
	rec.UpdatedAt = time.Now()

	if c.fundamentals {
		if err := c.enrichOverview(ctx, symbol, rec); err != nil {
			// 基本面失败不影响行情结果
			c.logger.Warn("overview fetch failed",
				clog.String("symbol", symbol),
				clog.Error(err))
		}
	}
	return rec, nil
}

// overviewResponse OVERVIEW 响应的关心字段
type overviewResponse struct {
	Name                 string `json:"Name"`
	Exchange             string `json:"Exchange"`
	Currency             string `json:"Currency"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	EPS                  string `json:"EPS"`
	DividendYield        string `json:"DividendYield"`
	Note                 string `json:"Note"`
	Information          string `json:"Information"`
}

func (c *Client) enrichOverview(ctx context.Context, symbol string, rec *provider.Record) error {
	body, err := c.get(ctx, url.Values{
		"function": {"OVERVIEW"},
		"symbol":   {symbol},
	})
	if err != nil {
		return err
	}

	var resp overviewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return err
	}

	rec.Name = resp.Name
	rec.Exchange = resp.Exchange
	rec.Currency = resp.Currency
	rec.MarketCap = provider.ParseFloat(resp.MarketCapitalization)
	rec.PERatio = provider.ParseFloat(resp.PERatio)
	rec.EPS = provider.ParseFloat(resp.EPS)
	rec.DividendYield = provider.ParseFloat(resp.DividendYield)
	return nil
}

// bulkQuotesResponse REALTIME_BULK_QUOTES 响应
type bulkQuotesResponse struct {
	Data []struct {
		Symbol        string `json:"symbol"`
		Open          string `json:"open"`
		High          string `json:"high"`
		Low           string `json:"low"`
		Price         string `json:"price"`
		Volume        string `json:"volume"`
		PreviousClose string `json:"previous_close"`
		Change        string `json:"change"`
		ChangePercent string `json:"change_percent"`
	} `json:"data"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (c *Client) FetchBatch(ctx context.Context, symbols []string) (map[string]*provider.Record, error) {
	if len(symbols) > c.cfg.BatchSize {
		return nil, xerrors.Wrapf(provider.ErrBatchTooLarge, "%d symbols > batch size %d", len(symbols), c.cfg.BatchSize)
	}

	body, err := c.get(ctx, url.Values{
		"function": {"REALTIME_BULK_QUOTES"},
		"symbol":   {strings.Join(symbols, ",")},
	})
	if err != nil {
		return nil, err
	}

	var resp bulkQuotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return nil, err
	}

	out := make(map[string]*provider.Record, len(resp.Data))
	for _, q := range resp.Data {
		rec := provider.NewRecord(q.Symbol, Name)
		rec.Price = provider.ParseFloat(q.Price)
		rec.Open = provider.ParseFloat(q.Open)
		rec.High = provider.ParseFloat(q.High)
		rec.Low = provider.ParseFloat(q.Low)
		rec.Volume = provider.ParseFloat(q.Volume)
		rec.PreviousClose = provider.ParseFloat(q.PreviousClose)
		rec.Change = provider.ParseFloat(q.Change)
		rec.ChangePercent = provider.ParseFloat(q.ChangePercent)
		rec.UpdatedAt = time.Now()
		out[rec.Symbol] = rec
	}
	return out, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	// 探测一个已知标的；数据源可达且响应可解析即视为健康
	_, err := c.FetchOne(ctx, "IBM")
	if err != nil && !xerrors.Is(err, provider.ErrNotFound) {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, query url.Values) ([]byte, error) {
	query.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+query.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "alphavantage: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Newf("alphavantage: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(err, "alphavantage: read body")
	}
	return body, nil
}

// quotaError Alpha Vantage 配额耗尽时返回 200 + 提示文本
func quotaError(note, information string) error {
	if note != "" || strings.Contains(information, "rate limit") {
		return xerrors.Wrap(provider.ErrRateLimited, fmt.Sprintf("%s%s", note, information))
	}
	return nil
}

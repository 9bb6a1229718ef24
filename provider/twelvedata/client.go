// Package twelvedata 实现 Twelve Data 数据源客户端。
//
// /quote 是原生批量接口：单标的返回一个对象，多标的返回 symbol 到对象的映射。
// 错误以 200 + {"code":..,"status":"error"} 的形式返回，需要逐条识别。
package twelvedata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/findata/clog"
	"github.com/ceyewan/findata/provider"
	"github.com/ceyewan/findata/xerrors"
)

// Name 数据源标识
const Name = "twelvedata"

// DefaultBaseURL Twelve Data API 地址
const DefaultBaseURL = "https://api.twelvedata.com"

// Client Twelve Data 客户端
type Client struct {
	cfg        *provider.Config
	baseURL    string
	httpClient *http.Client
	logger     clog.Logger
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

// New 创建客户端
func New(cfg *provider.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, xerrors.New("twelvedata: config is nil")
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

// quotePayload /quote 单个标的的响应对象，数值是字符串。
// 错误响应复用同一形状，靠 Status/Code 字段区分
type quotePayload struct {
	Symbol        string `json:"symbol"`
	CompanyName   string `json:"name"`
	Exchange      string `json:"exchange"`
	Currency      string `json:"currency"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	PreviousClose string `json:"previous_close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	Volume        string `json:"volume"`
	Timestamp     int64  `json:"timestamp"`

	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *quotePayload) toError() error {
	if p.Status != "error" {
		return nil
	}
	switch p.Code {
	case http.StatusNotFound:
		return provider.ErrNotFound
	case http.StatusTooManyRequests:
		return xerrors.Wrap(provider.ErrRateLimited, p.Message)
	default:
		return xerrors.Newf("twelvedata: upstream error %d: %s", p.Code, p.Message)
	}
}

func (p *quotePayload) toRecord() *provider.Record {
	rec := provider.NewRecord(p.Symbol, Name)
	rec.Name = p.CompanyName
	rec.Exchange = p.Exchange
	rec.Currency = p.Currency
	rec.Price = provider.ParseFloat(p.Close)
	rec.Open = provider.ParseFloat(p.Open)
	rec.High = provider.ParseFloat(p.High)
	rec.Low = provider.ParseFloat(p.Low)
	rec.PreviousClose = provider.ParseFloat(p.PreviousClose)
	rec.Change = provider.ParseFloat(p.Change)
	rec.ChangePercent = provider.ParseFloat(p.PercentChange)
	rec.Volume = provider.ParseFloat(p.Volume)
	if p.Timestamp > 0 {
		rec.UpdatedAt = time.Unix(p.Timestamp, 0)
	} else {
		rec.UpdatedAt = time.Now()
	}
	return rec
}

func (c *Client) FetchOne(ctx context.Context, symbol string) (*provider.Record, error) {
	body, err := c.get(ctx, url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var payload quotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}
	if err := payload.toError(); err != nil {
		return nil, err
	}
	return payload.toRecord(), nil
}

func (c *Client) FetchBatch(ctx context.Context, symbols []string) (map[string]*provider.Record, error) {
	if len(symbols) > c.cfg.BatchSize {
		return nil, xerrors.Wrapf(provider.ErrBatchTooLarge, "%d symbols > batch size %d", len(symbols), c.cfg.BatchSize)
	}
	if len(symbols) == 1 {
		rec, err := c.FetchOne(ctx, symbols[0])
		if err != nil {
			if xerrors.Is(err, provider.ErrNotFound) {
				return map[string]*provider.Record{}, nil
			}
			return nil, err
		}
		return map[string]*provider.Record{rec.Symbol: rec}, nil
	}

	body, err := c.get(ctx, url.Values{"symbol": {strings.Join(symbols, ",")}})
	if err != nil {
		return nil, err
	}

	// 多标的时响应是 symbol -> 对象的映射；整体错误则是单个错误对象
	var batch map[string]quotePayload
	if err := json.Unmarshal(body, &batch); err != nil {
		var single quotePayload
		if jerr := json.Unmarshal(body, &single); jerr == nil {
			if perr := single.toError(); perr != nil {
				return nil, perr
			}
		}
		return nil, xerrors.Wrap(provider.ErrMalformedResponse, err.Error())
	}

	out := make(map[string]*provider.Record, len(batch))
	for symbol, payload := range batch {
		// 个别标的失败只影响自己
		if payload.toError() != nil {
			continue
		}
		if payload.Symbol == "" {
			payload.Symbol = symbol
		}
		rec := payload.toRecord()
		out[rec.Symbol] = rec
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

func (c *Client) get(ctx context.Context, query url.Values) ([]byte, error) {
	query.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "twelvedata: build request")
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
		return nil, xerrors.New("twelvedata: unexpected status " + strconv.Itoa(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(err, "twelvedata: read body")
	}
	return body, nil
}

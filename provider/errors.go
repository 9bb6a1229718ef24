package provider

import (
	"context"
	"fmt"
	"net"

	"github.com/ceyewan/findata/xerrors"
)

// Code 封闭的错误分类，编排层据此决定降级行为
type Code string

const (
	CodeTimeout      Code = "TIMEOUT"
	CodeNetworkError Code = "NETWORK_ERROR"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeCircuitOpen  Code = "CIRCUIT_OPEN"
	CodeParseError   Code = "PARSE_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnknown      Code = "UNKNOWN"
)

// 客户端内部使用的哨兵错误，Classify 据此归类
var (
	// ErrNotFound 响应合法但没有该标的的数据
	ErrNotFound = xerrors.New("provider: no data for symbol")

	// ErrMalformedResponse 响应无法解析
	ErrMalformedResponse = xerrors.New("provider: malformed response")

	// ErrRateLimited 数据源侧返回 429 或配额提示
	ErrRateLimited = xerrors.New("provider: rate limited by upstream")

	// ErrBatchTooLarge 批量请求超过数据源单次上限
	ErrBatchTooLarge = xerrors.New("provider: batch size exceeded")
)

// Error 带数据源名与分类码的错误，FetchResult.Errors 的元素类型
type Error struct {
	Provider string `json:"provider"`
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: [%s] %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 构造一个已分类的数据源错误
func NewError(provider string, code Code, message string, err error) *Error {
	return &Error{Provider: provider, Code: code, Message: message, Err: err}
}

// Classify 把客户端返回的任意错误归入封闭分类。
// 已经是 *Error 的原样返回；超时优先于网络错误判断，
// 因为超时同样以 net.Error 的形式出现
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if xerrors.As(err, &pe) {
		return pe
	}

	code := CodeUnknown
	switch {
	case xerrors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case xerrors.Is(err, ErrRateLimited):
		code = CodeRateLimited
	case xerrors.Is(err, ErrNotFound):
		code = CodeNotFound
	case xerrors.Is(err, ErrMalformedResponse):
		code = CodeParseError
	default:
		var netErr net.Error
		if xerrors.As(err, &netErr) {
			if netErr.Timeout() {
				code = CodeTimeout
			} else {
				code = CodeNetworkError
			}
		}
	}

	return &Error{
		Provider: provider,
		Code:     code,
		Message:  err.Error(),
		Err:      err,
	}
}

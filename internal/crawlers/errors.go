package crawlers

import (
	"errors"
	"fmt"
)

// 错误类型定义
// 除种子无效和传输初始化失败外,其余错误只影响单个页面
var (
	ErrMalformedURL      = errors.New("URL格式无效")
	ErrUnsupportedScheme = errors.New("不支持的URL协议")
	ErrFetchFailure      = errors.New("页面抓取失败")
	ErrNoContent         = errors.New("页面无可索引内容")
	ErrInvalidSeed       = errors.New("种子URL无效")
	ErrTransportInit     = errors.New("抓取传输初始化失败")
)

// FetchError 单个页面的抓取错误
// StatusCode为0表示未收到HTTP响应(网络错误或超时)
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("页面抓取失败 [%s]: HTTP %d", e.URL, e.StatusCode)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("页面抓取失败 [%s]: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("页面抓取失败 [%s]: %v", e.URL, e.Err)
}

// Unwrap 使errors.Is同时匹配ErrFetchFailure和底层错误
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailure}
	}
	return []error{ErrFetchFailure, e.Err}
}

// checkStatus 非2xx状态码视为抓取失败
func checkStatus(pageURL string, statusCode int) error {
	if statusCode < 200 || statusCode > 299 {
		return &FetchError{URL: pageURL, StatusCode: statusCode}
	}
	return nil
}

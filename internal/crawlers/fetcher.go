package crawlers

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
)

// FetchResult 一次页面抓取的结果
type FetchResult struct {
	URL        string // 最终地址(可能经过重定向)
	StatusCode int    // 0 表示传输层未提供状态码
	HTML       string
}

// Fetcher 页面抓取传输
// 每次调用只抓取一个页面, ctx的截止时间即本次抓取的超时
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*FetchResult, error)
	Close() error
}

// NewFetcher 根据抓取模式创建传输
// 浏览器无法启动时返回ErrTransportInit
func NewFetcher(config models.CrawlConfig, headerProvider models.HeaderProvider) (Fetcher, error) {
	switch config.Mode {
	case models.ModeStatic:
		return NewStaticFetcher(config, headerProvider), nil
	case models.ModeDynamic, "":
		return NewDynamicFetcher(config, headerProvider)
	default:
		return nil, fmt.Errorf("%w: 无效的抓取模式 %s", ErrTransportInit, config.Mode)
	}
}

package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// browserManagedHeaders 由浏览器自行管理, 不作为额外头部下发
var browserManagedHeaders = map[string]bool{
	"Accept-Encoding": true,
}

// DynamicFetcher 动态抓取器(使用Rod)
// 使用单个标签页顺序渲染页面, 返回渲染后的DOM
type DynamicFetcher struct {
	browser *rod.Browser
	page    *rod.Page
	config  models.CrawlConfig

	// HTTP头部提供者
	headerProvider models.HeaderProvider

	// 撤销额外头部设置
	restoreHeaders func()

	mu sync.Mutex
}

// NewDynamicFetcher 启动浏览器并创建动态抓取器
func NewDynamicFetcher(config models.CrawlConfig, headerProvider models.HeaderProvider) (*DynamicFetcher, error) {
	df := &DynamicFetcher{
		config:         config,
		headerProvider: headerProvider,
	}

	if err := df.launchBrowser(); err != nil {
		df.closeBrowser()
		return nil, fmt.Errorf("%w: %v", ErrTransportInit, err)
	}

	// 记录证书跳过信息 (WARN级别日志)
	utils.Warnf("浏览器已配置为跳过HTTPS证书验证,适用于内网/开发环境的自签名证书")
	return df, nil
}

// launchBrowser 启动浏览器并打开抓取用的标签页
func (df *DynamicFetcher) launchBrowser() error {
	l := launcher.New().
		Headless(df.config.Headless).
		Set("ignore-certificate-errors")
	utils.Debugf("浏览器启动参数: --ignore-certificate-errors (跳过TLS证书验证)")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	df.browser = rod.New().ControlURL(controlURL)
	if err := df.browser.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := df.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("创建标签页失败: %w", err)
	}
	df.page = page

	if df.headerProvider != nil {
		headers, err := df.headerProvider.GetHeaders()
		if err != nil {
			return fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		if dict := headerDict(headers); len(dict) > 0 {
			restore, err := page.SetExtraHeaders(dict)
			if err != nil {
				return fmt.Errorf("设置HTTP头部失败: %w", err)
			}
			df.restoreHeaders = restore
		}
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// headerDict 转换为rod要求的 name, value 交替列表
func headerDict(headers http.Header) []string {
	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) == 0 || browserManagedHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		dict = append(dict, name, values[0])
	}
	return dict
}

// Fetch 渲染单个页面并返回DOM
// 同文档内的哈希导航不产生网络响应, 此时状态码为0并视为成功
func (df *DynamicFetcher) Fetch(ctx context.Context, pageURL string) (result *FetchResult, err error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &FetchError{URL: pageURL, Err: fmt.Errorf("页面渲染panic: %v", r)}
		}
	}()

	page := df.page.Context(ctx)

	statusCh := make(chan int, 1)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		select {
		case statusCh <- e.Response.Status:
		default:
		}
		return true
	})
	go wait()

	if err := page.Navigate(pageURL); err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	if err := page.WaitLoad(); err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	// 额外等待时间(等待客户端渲染)
	if df.config.WaitTime > 0 {
		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: pageURL, Err: ctx.Err()}
		case <-time.After(time.Duration(df.config.WaitTime) * time.Second):
		}
	}

	status := 0
	select {
	case status = <-statusCh:
	default:
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: status, Err: err}
	}

	finalURL := pageURL
	if info, err := page.Info(); err == nil && info != nil && strings.HasPrefix(info.URL, "http") {
		finalURL = info.URL
	}

	result = &FetchResult{URL: finalURL, StatusCode: status, HTML: html}
	if status != 0 {
		if err := checkStatus(pageURL, status); err != nil {
			return result, err
		}
	}

	utils.Debugf("页面渲染完成: %s", pageURL)
	return result, nil
}

// Close 关闭浏览器
func (df *DynamicFetcher) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.closeBrowser()
}

func (df *DynamicFetcher) closeBrowser() error {
	if df.restoreHeaders != nil {
		df.restoreHeaders()
		df.restoreHeaders = nil
	}
	if df.browser == nil {
		return nil
	}
	err := df.browser.Close()
	df.browser = nil
	df.page = nil
	utils.Debugf("浏览器已关闭")
	return err
}

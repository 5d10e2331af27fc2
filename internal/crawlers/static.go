package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticFetcher 静态抓取器(使用Colly)
// 不执行JavaScript, 适合服务端渲染的站点
type StaticFetcher struct {
	collector *colly.Collector
	config    models.CrawlConfig

	// HTTP头部提供者
	headerProvider models.HeaderProvider
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(config models.CrawlConfig, headerProvider models.HeaderProvider) *StaticFetcher {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 允许访问自签名证书的站点
			},
		},
		Timeout: config.FetchTimeoutDuration(),
	}

	// 同步模式: 主循环一次只处理一个页面
	// 非2xx响应同样进入OnResponse, 由checkStatus统一判定
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetClient(httpClient)
	utils.Debugf("静态抓取器: TLS证书验证已禁用, 超时 %v", config.FetchTimeoutDuration())

	return &StaticFetcher{
		collector:      c,
		config:         config,
		headerProvider: headerProvider,
	}
}

// Fetch 抓取单个页面
func (sf *StaticFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResult, error) {
	timeout := sf.config.FetchTimeoutDuration()
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	var headers http.Header
	if sf.headerProvider != nil {
		h, err := sf.headerProvider.GetHeaders()
		if err != nil {
			return nil, &FetchError{URL: pageURL, Err: err}
		}
		headers = h
	}

	// Clone不复制回调, 每次抓取注册独立的回调
	c := sf.collector.Clone()
	c.Context = ctx
	c.SetRequestTimeout(timeout)

	var (
		result   *FetchResult
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			fetchErr = err
			return
		}
		result = &FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(body),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &FetchError{URL: pageURL, StatusCode: status, Err: err}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if fetchErr != nil {
		var fe *FetchError
		if !errors.As(fetchErr, &fe) {
			fetchErr = &FetchError{URL: pageURL, Err: fetchErr}
		}
		return nil, fetchErr
	}
	if result == nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("未收到响应")}
	}
	if err := checkStatus(pageURL, result.StatusCode); err != nil {
		return result, err
	}

	return result, nil
}

// Close 静态抓取器无需释放资源
func (sf *StaticFetcher) Close() error {
	return nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		// Colly已自行解压gzip, 此时头部仍保留原编码
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		// 未知编码,返回警告但仍然返回原始内容
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

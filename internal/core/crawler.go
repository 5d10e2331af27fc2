package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/crawlers"
	"github.com/RecoveryAshes/sitecrawl/internal/index"
	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/status"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// 失败页面的错误类型
const (
	errorTypeMalformed = "malformed_url"
	errorTypeFetch     = "fetch_failure"
	errorTypeExtract   = "extract_failure"
)

const (
	// statusTimeout 单次状态发布的超时
	statusTimeout = 2 * time.Second
	// DefaultSinkTimeout 单个文档写入索引输出的默认超时
	DefaultSinkTimeout = 10 * time.Second
)

// CrawlerOptions 爬取器依赖
type CrawlerOptions struct {
	Fetcher crawlers.Fetcher // 必需
	Sink    index.Sink       // 必需

	// Status 运行状态发布, 为nil时不发布
	Status status.Store

	// SinkTimeout 单个文档写入的超时, 为0时使用DefaultSinkTimeout
	SinkTimeout time.Duration

	// Progress 进度条输出目标, 为nil或config.ShowProgress为false时不显示
	Progress io.Writer

	// 以下字段只写入报告
	IndexName  string
	IndexAlias string

	// ReportDir 报告根目录, 为空时不写报告文件
	ReportDir string
}

// Crawler 单站点爬取流水线
// 严格串行: 一个页面抓取、解析、展开链接之后才取下一个
type Crawler struct {
	config   models.CrawlConfig
	task     *models.CrawlTask
	frontier *crawlers.Frontier
	opts     CrawlerOptions

	progress *progressbar.ProgressBar

	// 首个成功页面的标题, 只设置一次
	domainTitle    string
	domainTitleSet bool

	// 统计与失败列表, 诊断快照会从其他goroutine读取
	mu          sync.Mutex
	stats       models.TaskStats
	failedPages []models.FailedPage
}

// NewCrawler 创建爬取器
// 种子URL无效时返回 crawlers.ErrInvalidSeed
func NewCrawler(seedURL string, config models.CrawlConfig, opts CrawlerOptions) (*Crawler, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: 未提供抓取器", crawlers.ErrTransportInit)
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("未提供索引输出")
	}

	frontier := crawlers.NewFrontier(crawlers.FrontierOptions{
		StrictScope:   config.StrictScope,
		MaxDepth:      config.MaxDepth,
		Canonicalizer: crawlers.NewCanonicalizer(config.HashRouteMarkers),
	})
	scope, err := frontier.Seed(seedURL)
	if err != nil {
		return nil, err
	}

	task, err := models.NewCrawlTask(scope, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawlers.ErrInvalidSeed, err)
	}

	return &Crawler{
		config:   config,
		task:     task,
		frontier: frontier,
		opts:     opts,
	}, nil
}

// Task 返回任务信息
func (c *Crawler) Task() *models.CrawlTask {
	return c.task
}

// Scope 站点作用域
func (c *Crawler) Scope() string {
	return c.frontier.Scope()
}

// DomainTitle 首个成功页面的标题
func (c *Crawler) DomainTitle() string {
	return c.domainTitle
}

// Stats 返回当前统计信息副本
func (c *Crawler) Stats() models.TaskStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Crawler) updateStats(fn func(s *models.TaskStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// Run 执行爬取直到前沿队列为空
// ctx取消后在两个页面之间停止, 返回的报告状态为cancelled, 错误为ctx.Err()
func (c *Crawler) Run(ctx context.Context) (*models.CrawlReport, error) {
	c.task.Start()

	utils.Infof("🚀 开始爬取任务")
	utils.Infof("种子URL: %s", c.task.TargetURL)
	utils.Infof("站点作用域: %s", c.frontier.Scope())
	utils.Infof("抓取模式: %s", c.config.Mode)

	if c.config.ShowProgress && c.opts.Progress != nil {
		c.progress = utils.NewCrawlProgress(c.opts.Progress, "🕷️  爬取中")
	}
	c.publishStatus(ctx, models.TaskStatusRunning)

	processed := 0
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			utils.Warnf("爬取被中断, 剩余 %d 个待处理URL", c.frontier.PendingCount())
			runErr = err
			break
		}
		if c.config.MaxPages > 0 && processed >= c.config.MaxPages {
			utils.Infof("已达到最大页面数 %d, 停止爬取", c.config.MaxPages)
			break
		}

		item, ok := c.frontier.Next()
		if !ok {
			break
		}

		c.processItem(ctx, item)
		processed++

		if c.progress != nil {
			c.progress.Add(1)
		}
		if c.config.StatusEvery > 0 && processed%c.config.StatusEvery == 0 {
			c.publishStatus(ctx, models.TaskStatusRunning)
		}
	}

	if c.progress != nil {
		c.progress.Finish()
	}

	final := models.TaskStatusCompleted
	if runErr != nil {
		final = models.TaskStatusCancelled
	}
	c.task.Finish(final, runErr)
	c.updateStats(func(s *models.TaskStats) { s.Duration = c.task.Stats.Duration })
	c.task.Stats = c.Stats()
	c.publishStatus(ctx, final)

	report := c.buildReport()
	if c.opts.ReportDir != "" {
		reporter := utils.NewReporter(c.opts.ReportDir, c.task.Domain)
		if err := reporter.GenerateReport(report); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	stats := report.Stats
	utils.Infof("✅ 爬取任务结束: %s", final)
	utils.Infof("访问 %d, 索引 %d, 无内容 %d, 失败 %d, 索引失败 %d",
		stats.Visited, stats.Indexed, stats.NoContent, stats.Failed, stats.IndexFailures)
	utils.Infof("总耗时: %.2f秒", stats.Duration)

	return report, runErr
}

// processItem 处理单个工作项, 任何错误都只影响当前页面
func (c *Crawler) processItem(ctx context.Context, item models.WorkItem) {
	pageURL, err := c.frontier.Canonicalizer().Canonicalize(item.URL, "")
	if err != nil {
		c.frontier.MarkFailed(item.URL)
		c.recordFailure(item, 0, errorTypeMalformed, err)
		return
	}
	if c.frontier.IsVisited(pageURL) {
		utils.Debugf("跳过已访问页面: %s", pageURL)
		return
	}

	result, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		statusCode := 0
		var fe *crawlers.FetchError
		if errors.As(err, &fe) {
			statusCode = fe.StatusCode
		}
		c.frontier.MarkFailed(pageURL)
		c.recordFailure(item, statusCode, errorTypeFetch, err)
		return
	}

	page, err := crawlers.Extract(result.HTML, pageURL, c.frontier.Canonicalizer())
	switch {
	case errors.Is(err, crawlers.ErrNoContent):
		c.handleNoContent(item, pageURL, page)
		return
	case err != nil:
		c.frontier.MarkFailed(pageURL)
		c.recordFailure(item, result.StatusCode, errorTypeExtract, err)
		return
	}

	if !c.domainTitleSet {
		c.domainTitle = page.Title
		c.domainTitleSet = true
		utils.Infof("📌 站点标题: %s", c.domainTitle)
	}

	doc := models.NewIndexDocument(page, c.domainTitle, c.frontier.Scope())
	if err := c.indexDocument(ctx, doc); err != nil {
		c.updateStats(func(s *models.TaskStats) { s.IndexFailures++ })
		utils.Logger.Error().Err(err).Str("url", pageURL).Msg("索引写入失败")
	} else {
		c.updateStats(func(s *models.TaskStats) { s.Indexed++ })
	}

	added := c.frontier.Offer(page.OutboundURLs, pageURL, item.Depth+1)
	c.frontier.MarkVisited(pageURL)
	c.updateStats(func(s *models.TaskStats) {
		s.Visited++
		s.Discovered += added
	})

	utils.Logger.Debug().
		Str("url", pageURL).
		Int("links", len(page.OutboundURLs)).
		Int("new", added).
		Msg("页面已索引")
}

// indexDocument 写入索引输出, 已取出的页面即使ctx被取消也完成写入
// 写入受SinkTimeout限制, 不可达的输出不会阻塞爬取循环
func (c *Crawler) indexDocument(ctx context.Context, doc *models.IndexDocument) error {
	timeout := c.opts.SinkTimeout
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return c.opts.Sink.IndexDocument(sinkCtx, doc)
}

// handleNoContent 无内容页面不写入索引, 按配置决定是否展开其链接
func (c *Crawler) handleNoContent(item models.WorkItem, pageURL string, page *models.ParsedPage) {
	added := 0
	if c.config.ExpandNoContent && page != nil {
		added = c.frontier.Offer(page.OutboundURLs, pageURL, item.Depth+1)
	}
	c.frontier.MarkVisited(pageURL)
	c.updateStats(func(s *models.TaskStats) {
		s.Visited++
		s.NoContent++
		s.Discovered += added
	})
	utils.Logger.Info().Str("url", pageURL).Int("new", added).Msg("页面无可索引内容, 跳过索引")
}

// fetchPage 带超时抓取单个页面
// 抓取不随ctx取消而中断, 只受单页超时约束; panic转换为抓取失败
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (result *crawlers.FetchResult, err error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.FetchTimeoutDuration())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &crawlers.FetchError{URL: pageURL, Err: fmt.Errorf("抓取时发生panic: %v", r)}
		}
	}()

	return c.opts.Fetcher.Fetch(fetchCtx, pageURL)
}

func (c *Crawler) recordFailure(item models.WorkItem, statusCode int, errorType string, err error) {
	c.mu.Lock()
	c.stats.Failed++
	c.failedPages = append(c.failedPages, models.FailedPage{
		URL:        item.URL,
		Origin:     item.Origin,
		StatusCode: statusCode,
		ErrorType:  errorType,
		ErrorMsg:   err.Error(),
	})
	c.mu.Unlock()

	utils.Logger.Warn().
		Err(err).
		Str("url", item.URL).
		Str("origin", item.Origin).
		Int("status", statusCode).
		Msg("页面处理失败")
}

// publishStatus 发布运行状态, 失败只记录日志
func (c *Crawler) publishStatus(ctx context.Context, state models.TaskStatus) {
	if c.opts.Status == nil {
		return
	}
	stats := c.Stats()
	st := models.CrawlStatus{
		RunID:     c.task.ID,
		SeedURL:   c.task.TargetURL,
		State:     state,
		Visited:   stats.Visited,
		Failed:    stats.Failed,
		Indexed:   stats.Indexed,
		NoContent: stats.NoContent,
		Pending:   c.frontier.PendingCount(),
		UpdatedAt: time.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
	defer cancel()
	if err := c.opts.Status.SetStatus(pubCtx, st); err != nil {
		utils.Warnf("发布运行状态失败: %v", err)
	}
}

func (c *Crawler) buildReport() *models.CrawlReport {
	c.mu.Lock()
	failed := make([]models.FailedPage, len(c.failedPages))
	copy(failed, c.failedPages)
	stats := c.stats
	c.mu.Unlock()

	report := &models.CrawlReport{
		TaskID:      c.task.ID,
		TargetURL:   c.task.TargetURL,
		Domain:      c.task.Domain,
		Mode:        c.config.Mode,
		Status:      c.task.Status,
		IndexName:   c.opts.IndexName,
		IndexAlias:  c.opts.IndexAlias,
		DomainTitle: c.domainTitle,
		Duration:    stats.Duration,
		Stats:       stats,
		FailedPages: failed,
		Config:      c.config,
	}
	if c.task.StartedAt != nil {
		report.StartTime = *c.task.StartedAt
	}
	if c.task.CompletedAt != nil {
		report.EndTime = *c.task.CompletedAt
	}
	return report
}

// DumpState 将前沿队列与资源占用写入w, 不改变爬取状态
// 可以在爬取进行中从其他goroutine调用
func (c *Crawler) DumpState(w io.Writer) error {
	snap := c.frontier.Snapshot()
	snap.TaskID = c.task.ID
	snap.Stats = c.Stats()
	snap.Resources = crawlers.SampleResources()
	snap.CreatedAt = time.Now()

	data, err := snap.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化诊断快照失败: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}

	utils.Infof("🩺 诊断快照: 已访问 %d, 失败 %d, 待处理 %d, 内存压力 %s",
		len(snap.Visited), len(snap.Failed), len(snap.Pending), crawlers.MemoryPressure(snap.Resources))
	return nil
}

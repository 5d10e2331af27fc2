package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/crawlers"
	"github.com/RecoveryAshes/sitecrawl/internal/index"
	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/status"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
)

// fakeFetcher 按URL返回预置页面
// 未登记的URL返回404, block中的URL一直阻塞到ctx结束
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	block  map[string]bool
	panics map[string]bool
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*crawlers.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.panics[url] {
		panic("renderer crashed")
	}
	if f.block[url] {
		<-ctx.Done()
		return nil, &crawlers.FetchError{URL: url, Err: ctx.Err()}
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, &crawlers.FetchError{URL: url, StatusCode: 404}
	}
	return &crawlers.FetchResult{URL: url, StatusCode: 200, HTML: html}, nil
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type fakeSink struct {
	mu   sync.Mutex
	docs []*models.IndexDocument
	fail map[string]bool
}

func (s *fakeSink) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	if s.fail[doc.URL] {
		return index.ErrIndexWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeSink) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, d := range s.docs {
		out = append(out, d.URL)
	}
	return out
}

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func testCrawlConfig() models.CrawlConfig {
	cfg := models.DefaultCrawlConfig()
	cfg.Mode = models.ModeStatic
	cfg.ShowProgress = false
	cfg.FetchTimeout = 1
	return cfg
}

func newTestCrawler(t *testing.T, seed string, cfg models.CrawlConfig, f *fakeFetcher, s *fakeSink, opts ...func(*CrawlerOptions)) *Crawler {
	t.Helper()
	o := CrawlerOptions{Fetcher: f, Sink: s}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := NewCrawler(seed, cfg, o)
	if err != nil {
		t.Fatalf("NewCrawler() error = %v", err)
	}
	return c
}

func TestCrawler_ScenarioA(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Example Docs", `<p>home</p><a href="https://example.com/a">a</a><a href="https://example.com/a?x=1#frag">a2</a><a href="https://other.com/">other</a>`),
		"https://example.com/a": page("Page A", `<p>alpha</p><a href="/">home</a>`),
	}}
	s := &fakeSink{}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, s)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/a"}
	if !reflect.DeepEqual(f.calls, want) {
		t.Errorf("抓取顺序 = %v, want %v", f.calls, want)
	}
	if !reflect.DeepEqual(s.urls(), want) {
		t.Errorf("索引文档 = %v, want %v", s.urls(), want)
	}
	if report.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %s", report.Status)
	}
	if report.Stats.Visited != 2 || report.Stats.Indexed != 2 || report.Stats.Failed != 0 {
		t.Errorf("Stats = %+v", report.Stats)
	}
	if report.Stats.Discovered != 1 {
		t.Errorf("Discovered = %d, want 1", report.Stats.Discovered)
	}

	// 外链以规范化形式写入索引, 同一页面的不同写法只出现一次
	wantOut := []string{"https://example.com/a", "https://other.com/"}
	if got := s.docs[0].OutboundURLs; !reflect.DeepEqual(got, wantOut) {
		t.Errorf("OutboundURLs = %v, want %v", got, wantOut)
	}
}

func TestCrawler_InPageLinksResolveToSamePage(t *testing.T) {
	const seed = "https://example.com/docs/guide"
	f := &fakeFetcher{pages: map[string]string{
		seed:             page("Guide", `<p>guide</p><a href="#install">install</a><a href="?tab=2">tab</a><a href="#/intro">intro</a>`),
		seed + "#/intro": page("Intro", `<p>intro</p><a href="#top">top</a>`),
	}}
	s := &fakeSink{}
	c := newTestCrawler(t, seed, testCrawlConfig(), f, s)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{seed, seed + "#/intro"}
	if !reflect.DeepEqual(f.calls, want) {
		t.Errorf("抓取 = %v, want %v", f.calls, want)
	}
	if !reflect.DeepEqual(s.urls(), want) {
		t.Errorf("索引文档 = %v, want %v", s.urls(), want)
	}
}

func TestCrawler_DomainFields(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/docs/b": page("Second", `<p>b</p>`),
	}}
	f.pages["https://example.com/docs/"] = page("", `<p>x</p><a href="/docs/missing">m</a><a href="/docs/b">b</a>`)
	s := &fakeSink{}
	c := newTestCrawler(t, "https://example.com/docs/", testCrawlConfig(), f, s)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 首个成功页面的标题(即使为空)作为站点标题, 之后不再改变
	if c.DomainTitle() != "" {
		t.Errorf("DomainTitle() = %q", c.DomainTitle())
	}
	for _, d := range s.docs {
		if d.DomainTitle != "" || d.DomainURL != "https://example.com/docs/" {
			t.Errorf("站点字段错误: %+v", d)
		}
	}
}

func TestCrawler_DomainTitleFromFirstSuccess(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Alpha", `<p>a</p><a href="/b">b</a>`),
		"https://example.com/b": page("Bravo", `<p>b</p>`),
	}}
	s := &fakeSink{}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, s)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.docs) != 2 {
		t.Fatalf("docs = %v", s.urls())
	}
	for _, d := range s.docs {
		if d.DomainTitle != "Alpha" {
			t.Errorf("%s DomainTitle = %q, want Alpha", d.URL, d.DomainTitle)
		}
	}
	if s.docs[1].Title != "Bravo" {
		t.Errorf("页面标题 = %q", s.docs[1].Title)
	}
}

func TestCrawler_ScenarioB_Timeout(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://example.com/":  page("Home", `<p>home</p><a href="/broken">b</a><a href="/c">c</a>`),
			"https://example.com/c": page("C", `<p>c</p><a href="/broken">again</a>`),
		},
		block: map[string]bool{"https://example.com/broken": true},
	}
	s := &fakeSink{}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, s)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n := f.count("https://example.com/broken"); n != 1 {
		t.Errorf("/broken 被抓取 %d 次, want 1", n)
	}
	if f.count("https://example.com/c") != 1 {
		t.Error("超时后应继续处理剩余页面")
	}
	if len(report.FailedPages) != 1 {
		t.Fatalf("FailedPages = %+v", report.FailedPages)
	}
	fp := report.FailedPages[0]
	if fp.URL != "https://example.com/broken" || fp.Origin != "https://example.com/" || fp.ErrorType != errorTypeFetch {
		t.Errorf("FailedPage = %+v", fp)
	}
}

func TestCrawler_ScenarioC_NoContent(t *testing.T) {
	pages := map[string]string{
		"https://example.com/":      page("Home", `<nav><a href="/child">child</a></nav>`),
		"https://example.com/child": page("Child", `<p>real content</p>`),
	}

	tests := []struct {
		name       string
		expand     bool
		wantCalls  int
		wantDocs   []string
		wantNoCont int
	}{
		{"展开链接", true, 2, []string{"https://example.com/child"}, 1},
		{"丢弃链接", false, 1, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCrawlConfig()
			cfg.ExpandNoContent = tt.expand
			f := &fakeFetcher{pages: pages}
			s := &fakeSink{}
			c := newTestCrawler(t, "https://example.com/", cfg, f, s)

			report, err := c.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(f.calls) != tt.wantCalls {
				t.Errorf("抓取 = %v", f.calls)
			}
			if !reflect.DeepEqual(s.urls(), tt.wantDocs) {
				t.Errorf("索引文档 = %v, want %v", s.urls(), tt.wantDocs)
			}
			if report.Stats.NoContent != tt.wantNoCont {
				t.Errorf("NoContent = %d", report.Stats.NoContent)
			}
		})
	}
}

func TestCrawler_IndexFailureIsNotFatal(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Home", `<p>home</p><a href="/a">a</a>`),
		"https://example.com/a": page("A", `<p>a</p>`),
	}}
	s := &fakeSink{fail: map[string]bool{"https://example.com/": true}}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, s)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Stats.IndexFailures != 1 || report.Stats.Indexed != 1 || report.Stats.Visited != 2 {
		t.Errorf("Stats = %+v", report.Stats)
	}
	if !reflect.DeepEqual(s.urls(), []string{"https://example.com/a"}) {
		t.Errorf("索引失败后仍应展开链接, docs = %v", s.urls())
	}
}

// slowSink 一直阻塞到ctx结束
type slowSink struct{}

func (slowSink) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCrawler_SinkTimeout(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Home", `<p>home</p><a href="/a">a</a>`),
		"https://example.com/a": page("A", `<p>a</p>`),
	}}
	c, err := NewCrawler("https://example.com/", testCrawlConfig(), CrawlerOptions{
		Fetcher:     f,
		Sink:        slowSink{},
		SinkTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *models.CrawlReport, 1)
	go func() {
		report, _ := c.Run(context.Background())
		done <- report
	}()

	select {
	case report := <-done:
		if report.Stats.IndexFailures != 2 || report.Stats.Visited != 2 {
			t.Errorf("Stats = %+v", report.Stats)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("阻塞的索引输出拖住了爬取循环")
	}
}

func TestCrawler_PanicIsIsolated(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://example.com/":  page("Home", `<p>home</p><a href="/x">x</a><a href="/y">y</a>`),
			"https://example.com/y": page("Y", `<p>y</p>`),
		},
		panics: map[string]bool{"https://example.com/x": true},
	}
	s := &fakeSink{}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, s)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Stats.Failed != 1 || report.Stats.Indexed != 2 {
		t.Errorf("Stats = %+v", report.Stats)
	}
}

func TestCrawler_MaxPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Home", `<p>h</p><a href="/a">a</a><a href="/b">b</a>`),
		"https://example.com/a": page("A", `<p>a</p>`),
		"https://example.com/b": page("B", `<p>b</p>`),
	}}
	cfg := testCrawlConfig()
	cfg.MaxPages = 2
	c := newTestCrawler(t, "https://example.com/", cfg, f, &fakeSink{})

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.calls) != 2 {
		t.Errorf("抓取 %d 页, want 2", len(f.calls))
	}
}

func TestCrawler_Cancelled(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://example.com/": page("Home", "<p>h</p>")}}
	store := status.NewMemoryStore()
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, &fakeSink{}, func(o *CrawlerOptions) {
		o.Status = store
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if report.Status != models.TaskStatusCancelled {
		t.Errorf("Status = %s", report.Status)
	}
	if len(f.calls) != 0 {
		t.Errorf("取消后不应抓取: %v", f.calls)
	}
	last, ok, _ := store.GetStatus(context.Background(), c.Task().ID)
	if !ok || last.State != models.TaskStatusCancelled || last.Pending != 1 {
		t.Errorf("最终状态 = %+v", last)
	}
}

func TestCrawler_PublishesStatus(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":  page("Home", `<p>h</p><a href="/a">a</a>`),
		"https://example.com/a": page("A", `<p>a</p>`),
	}}
	cfg := testCrawlConfig()
	cfg.StatusEvery = 1
	store := status.NewMemoryStore()
	c := newTestCrawler(t, "https://example.com/", cfg, f, &fakeSink{}, func(o *CrawlerOptions) {
		o.Status = store
	})

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	history := store.History()
	if len(history) != 4 {
		t.Fatalf("发布次数 = %d, want 4 (开始 + 每页 + 结束)", len(history))
	}
	if history[0].State != models.TaskStatusRunning || history[0].Pending != 1 {
		t.Errorf("首次状态 = %+v", history[0])
	}
	last := history[len(history)-1]
	if last.State != models.TaskStatusCompleted || last.Visited != 2 || last.Indexed != 2 || last.Pending != 0 {
		t.Errorf("最终状态 = %+v", last)
	}
	if last.RunID != c.Task().ID || last.SeedURL != "https://example.com/" {
		t.Errorf("状态标识错误: %+v", last)
	}
}

func TestCrawler_WritesReport(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/": page("Home", `<p>h</p><a href="/gone">gone</a>`),
	}}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, &fakeSink{}, func(o *CrawlerOptions) {
		o.ReportDir = dir
		o.IndexName = "webpages_1"
		o.IndexAlias = "webpages"
	})

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "example.com", "reports", utils.ReportFile))
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	var report models.CrawlReport
	if err := report.FromJSON(data); err != nil {
		t.Fatal(err)
	}
	if report.IndexName != "webpages_1" || report.DomainTitle != "Home" || report.Stats.Failed != 1 {
		t.Errorf("报告内容 = %+v", report)
	}
	if len(report.FailedPages) != 1 || report.FailedPages[0].StatusCode != 404 {
		t.Errorf("FailedPages = %+v", report.FailedPages)
	}
}

func TestCrawler_DumpState(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/": page("Home", `<p>h</p><a href="/a">a</a><a href="/b">b</a>`),
	}}
	cfg := testCrawlConfig()
	cfg.MaxPages = 1
	c := newTestCrawler(t, "https://example.com/", cfg, f, &fakeSink{})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := c.DumpState(&buf); err != nil {
		t.Fatalf("DumpState() error = %v", err)
	}
	var snap models.FrontierSnapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("快照不是合法JSON: %v", err)
	}
	if !reflect.DeepEqual(snap.Visited, []string{"https://example.com/"}) {
		t.Errorf("Visited = %v", snap.Visited)
	}
	if !reflect.DeepEqual(snap.Pending, []string{"https://example.com/a", "https://example.com/b"}) {
		t.Errorf("Pending = %v", snap.Pending)
	}
	if snap.Resources == nil || snap.TaskID != c.Task().ID {
		t.Errorf("快照缺少任务或资源信息: %+v", snap)
	}

	// 快照不改变状态
	if c.frontier.PendingCount() != 2 {
		t.Errorf("PendingCount() = %d", c.frontier.PendingCount())
	}
}

func TestNewCrawler_Errors(t *testing.T) {
	f := &fakeFetcher{}
	s := &fakeSink{}

	if _, err := NewCrawler("mailto:a@example.com", testCrawlConfig(), CrawlerOptions{Fetcher: f, Sink: s}); !errors.Is(err, crawlers.ErrInvalidSeed) {
		t.Errorf("error = %v, want ErrInvalidSeed", err)
	}
	if _, err := NewCrawler("https://example.com/", testCrawlConfig(), CrawlerOptions{Sink: s}); !errors.Is(err, crawlers.ErrTransportInit) {
		t.Errorf("error = %v, want ErrTransportInit", err)
	}

	bad := testCrawlConfig()
	bad.Mode = "bogus"
	if _, err := NewCrawler("https://example.com/", bad, CrawlerOptions{Fetcher: f, Sink: s}); err == nil {
		t.Error("无效配置应返回错误")
	}
}

func TestCrawler_WithIndexStore(t *testing.T) {
	ctx := context.Background()
	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	h, err := store.CreateIndex(ctx, "webpages_test")
	if err != nil {
		t.Fatal(err)
	}

	f := &fakeFetcher{pages: map[string]string{
		"https://example.com/":         page("Garden Guide", `<p>Welcome to the garden</p><a href="/roses">roses</a>`),
		"https://example.com/roses":    page("Roses", `<p>Roses need pruning in spring</p><a href="/#/tulips">t</a>`),
		"https://example.com/#/tulips": page("Tulips", `<p>Tulips bloom early</p>`),
	}}
	c := newTestCrawler(t, "https://example.com/", testCrawlConfig(), f, nil, func(o *CrawlerOptions) {
		o.Sink = h
	})
	if _, err := c.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.SwapAlias(ctx, "webpages", h.Name()); err != nil {
		t.Fatal(err)
	}

	if n, _ := store.Count(ctx, "webpages"); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
	hits, err := store.Search(ctx, "webpages", "pruning roses", 5)
	if err != nil || len(hits) == 0 || hits[0].URL != "https://example.com/roses" {
		t.Errorf("Search() = %v, %v", hits, err)
	}
	doc, _ := store.Document(ctx, "webpages", "https://example.com/#/tulips")
	if doc == nil || doc.DomainTitle != "Garden Guide" {
		t.Errorf("哈希路由页面文档 = %+v", doc)
	}
}

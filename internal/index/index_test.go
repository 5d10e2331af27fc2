package index

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/segmentio/kafka-go"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"停用词与词干", "The Quick Foxes are running", []string{"quick", "fox", "run"}},
		{"变音符号", "Café Crème", []string{"cafe", "creme"}},
		{"标点切分", "go-rod, colly/v2!", []string{"go", "rod", "colli", "v2"}},
		{"空文本", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.text, nil)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Analyze(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAnalyze_CustomStopwords(t *testing.T) {
	got := Analyze("the crawler", map[string]struct{}{"crawler": {}})
	if !reflect.DeepEqual(got, []string{"the"}) {
		t.Errorf("Analyze() = %v", got)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "index.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(url, title, content string) *models.IndexDocument {
	return &models.IndexDocument{
		ID:           models.NewID(),
		URL:          url,
		Title:        title,
		Content:      content,
		DomainTitle:  "Example Docs",
		DomainURL:    "https://example.com/",
		CrawledAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		OutboundURLs: []string{"https://example.com/b", "https://example.com/a"},
	}
}

func TestStore_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	h, err := s.CreateIndex(ctx, "webpages_1")
	if err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	docs := []*models.IndexDocument{
		testDoc("https://example.com/a", "Go crawler", "crawler crawler about go"),
		testDoc("https://example.com/b", "Intro", "go is fun crawler"),
		testDoc("https://example.com/c", "Other", "python scripts"),
	}
	for _, d := range docs {
		if err := h.IndexDocument(ctx, d); err != nil {
			t.Fatalf("IndexDocument() error = %v", err)
		}
	}

	hits, err := s.Search(ctx, "webpages_1", "Crawlers", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search() = %v, want 2 hits", hits)
	}
	if hits[0].URL != "https://example.com/a" || hits[1].URL != "https://example.com/b" {
		t.Errorf("排序错误: %v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("分数未降序: %v", hits)
	}
	if hits[0].Title != "Go crawler" {
		t.Errorf("Title = %q", hits[0].Title)
	}

	limited, err := s.Search(ctx, "webpages_1", "crawler", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("limit未生效: %v, %v", limited, err)
	}

	if hits, _ := s.Search(ctx, "webpages_1", "the and", 10); len(hits) != 0 {
		t.Errorf("纯停用词查询应无结果: %v", hits)
	}
}

func TestStore_SearchTieBreak(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	h, _ := s.CreateIndex(ctx, "ties")

	for _, u := range []string{"https://example.com/z", "https://example.com/m", "https://example.com/a"} {
		if err := h.IndexDocument(ctx, testDoc(u, "", "identical text")); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := s.Search(ctx, "ties", "identical", 0)
	if err != nil {
		t.Fatal(err)
	}
	var urls []string
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	want := []string{"https://example.com/a", "https://example.com/m", "https://example.com/z"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("同分结果顺序 = %v, want %v", urls, want)
	}
}

func TestStore_ReindexReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	h, _ := s.CreateIndex(ctx, "idx")

	if err := h.IndexDocument(ctx, testDoc("https://example.com/a", "Old", "legacy words")); err != nil {
		t.Fatal(err)
	}
	updated := testDoc("https://example.com/a", "New", "fresh words")
	updated.OutboundURLs = []string{"https://example.com/x"}
	if err := h.IndexDocument(ctx, updated); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.Count(ctx, "idx"); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if hits, _ := s.Search(ctx, "idx", "legacy", 10); len(hits) != 0 {
		t.Errorf("旧内容仍可检索: %v", hits)
	}

	doc, err := s.Document(ctx, "idx", "https://example.com/a")
	if err != nil || doc == nil {
		t.Fatalf("Document() = %v, %v", doc, err)
	}
	if doc.Title != "New" || !reflect.DeepEqual(doc.OutboundURLs, []string{"https://example.com/x"}) {
		t.Errorf("文档未被替换: %+v", doc)
	}
	if doc.DomainURL != "https://example.com/" || !doc.CrawledAt.Equal(updated.CrawledAt) {
		t.Errorf("站点字段错误: %+v", doc)
	}
}

func TestStore_OutboundOrderPreserved(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	h, _ := s.CreateIndex(ctx, "idx")
	d := testDoc("https://example.com/a", "T", "body")
	if err := h.IndexDocument(ctx, d); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Document(ctx, "idx", d.URL)
	if !reflect.DeepEqual(got.OutboundURLs, d.OutboundURLs) {
		t.Errorf("OutboundURLs = %v, want %v", got.OutboundURLs, d.OutboundURLs)
	}
	if missing, err := s.Document(ctx, "idx", "https://example.com/none"); err != nil || missing != nil {
		t.Errorf("不存在的文档应返回nil: %v, %v", missing, err)
	}
}

func TestStore_AliasSwap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, _ := s.CreateIndex(ctx, "webpages_1")
	first.IndexDocument(ctx, testDoc("https://example.com/old", "Old", "old crawl"))
	if err := s.SwapAlias(ctx, "webpages", first.Name()); err != nil {
		t.Fatalf("SwapAlias() error = %v", err)
	}
	if name, _ := s.Resolve(ctx, "webpages"); name != "webpages_1" {
		t.Errorf("Resolve() = %q", name)
	}

	second, _ := s.CreateIndex(ctx, "webpages_2")
	second.IndexDocument(ctx, testDoc("https://example.com/new", "New", "new crawl"))

	// 切换前别名仍指向旧索引
	if hits, _ := s.Search(ctx, "webpages", "crawl", 10); len(hits) != 1 || hits[0].URL != "https://example.com/old" {
		t.Errorf("切换前检索结果 = %v", hits)
	}

	if err := s.SwapAlias(ctx, "webpages", second.Name()); err != nil {
		t.Fatalf("SwapAlias() error = %v", err)
	}
	if hits, _ := s.Search(ctx, "webpages", "crawl", 10); len(hits) != 1 || hits[0].URL != "https://example.com/new" {
		t.Errorf("切换后检索结果 = %v", hits)
	}

	// 旧索引被删除
	if _, err := s.Resolve(ctx, "webpages_1"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("旧索引应被删除, err = %v", err)
	}
	if err := first.IndexDocument(ctx, testDoc("https://example.com/late", "", "x")); !errors.Is(err, ErrIndexWrite) {
		t.Errorf("写入已删除索引应失败, err = %v", err)
	}

	if err := s.SwapAlias(ctx, "webpages", "missing"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("切换到不存在的索引应失败, err = %v", err)
	}
}

func TestStore_RecreateIndex(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	h, _ := s.CreateIndex(ctx, "webpages_old")
	h.IndexDocument(ctx, testDoc("https://example.com/a", "A", "content"))
	s.SwapAlias(ctx, "webpages", h.Name())

	name, err := s.RecreateIndex(ctx, "webpages")
	if err != nil {
		t.Fatalf("RecreateIndex() error = %v", err)
	}
	if resolved, _ := s.Resolve(ctx, "webpages"); resolved != name {
		t.Errorf("Resolve() = %q, want %q", resolved, name)
	}
	if n, _ := s.Count(ctx, "webpages"); n != 0 {
		t.Errorf("重建后索引应为空, Count() = %d", n)
	}
}

func TestStore_DropIndex(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	live, _ := s.CreateIndex(ctx, "webpages_live")
	live.IndexDocument(ctx, testDoc("https://example.com/live", "Live", "garden notes"))
	s.SwapAlias(ctx, "webpages", live.Name())

	partial, _ := s.CreateIndex(ctx, "webpages_partial")
	partial.IndexDocument(ctx, testDoc("https://example.com/partial", "Partial", "garden notes"))

	if err := s.DropIndex(ctx, partial.Name()); err != nil {
		t.Fatalf("DropIndex() error = %v", err)
	}
	if _, err := s.Resolve(ctx, partial.Name()); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("索引应被删除, err = %v", err)
	}
	if hits, _ := s.Search(ctx, "webpages", "garden", 10); len(hits) != 1 || hits[0].URL != "https://example.com/live" {
		t.Errorf("别名指向的索引不应受影响: %v", hits)
	}

	if err := s.DropIndex(ctx, live.Name()); err != nil {
		t.Fatalf("DropIndex() error = %v", err)
	}
	if _, err := s.Resolve(ctx, "webpages"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("别名应随索引删除, err = %v", err)
	}

	if err := s.DropIndex(ctx, "missing"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("DropIndex(missing) error = %v", err)
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.CreateIndex(ctx, "dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateIndex(ctx, "dup"); !errors.Is(err, ErrIndexExists) {
		t.Errorf("重复创建 error = %v", err)
	}
	if _, err := s.Search(ctx, "nothing", "x", 10); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("Search() error = %v", err)
	}
	if _, err := s.Count(ctx, "nothing"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("Count() error = %v", err)
	}
	h := &Handle{store: s, name: "dup"}
	if err := h.IndexDocument(ctx, &models.IndexDocument{}); !errors.Is(err, ErrIndexWrite) {
		t.Errorf("缺少URL的文档 error = %v", err)
	}
}

func TestNewIndexName(t *testing.T) {
	got := NewIndexName("webpages", time.Date(2026, 10, 18, 9, 5, 7, 0, time.UTC))
	if got != "webpages_20261018090507" {
		t.Errorf("NewIndexName() = %q", got)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (r *recordingSink) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, doc.URL)
	return r.err
}

func TestMultiSink(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("connection refused")}
	doc := testDoc("https://example.com/a", "A", "x")

	if err := (MultiSink{ok, &recordingSink{}}).IndexDocument(context.Background(), doc); err != nil {
		t.Errorf("IndexDocument() error = %v", err)
	}

	err := MultiSink{ok, failing}.IndexDocument(context.Background(), doc)
	if !errors.Is(err, ErrIndexWrite) {
		t.Errorf("error = %v, want ErrIndexWrite", err)
	}
	if len(ok.urls) != 2 || len(failing.urls) != 1 {
		t.Errorf("每个Sink都应收到文档: ok=%v failing=%v", ok.urls, failing.urls)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, "webpages")
	doc := testDoc("https://example.com/a", "A", "body")

	if err := sink.IndexDocument(context.Background(), doc); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("消息数 = %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != doc.URL {
		t.Errorf("Key = %q", w.msgs[0].Key)
	}
	want, _ := doc.ToJSON()
	if string(w.msgs[0].Value) != string(want) {
		t.Errorf("Value = %s", w.msgs[0].Value)
	}

	w.err = errors.New("broker down")
	if err := sink.IndexDocument(context.Background(), doc); !errors.Is(err, ErrIndexWrite) {
		t.Errorf("error = %v, want ErrIndexWrite", err)
	}

	sink.Close()
	if !w.closed {
		t.Error("Close() 未关闭writer")
	}
}

package crawlers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
)

// FrontierOptions 前沿队列配置
type FrontierOptions struct {
	// StrictScope 为true时作用域前缀之后必须是路径段边界
	StrictScope bool

	// MaxDepth 最大链接深度, 0为不限
	MaxDepth int

	// Canonicalizer 为nil时使用默认规范化器
	Canonicalizer *Canonicalizer
}

// Frontier 前沿队列
// 职责: 维护待处理页面(FIFO)和每个URL的处理状态, 保证每个规范化URL至多入队一次
// 只有爬取主循环一个消费者; 读锁用于诊断快照等并发读取
type Frontier struct {
	canon *Canonicalizer

	// 站点作用域(规范化后的种子URL), 只设置一次
	scope string

	strict   bool
	maxDepth int

	// 待处理队列, head之前的元素已出队
	queue []models.WorkItem
	head  int

	// URL状态表, 不存在的键即Unseen
	states map[string]models.URLState

	// 保护以上字段的读写锁
	mu sync.RWMutex
}

// NewFrontier 创建前沿队列实例
func NewFrontier(opts FrontierOptions) *Frontier {
	canon := opts.Canonicalizer
	if canon == nil {
		canon = defaultCanonicalizer
	}
	return &Frontier{
		canon:    canon,
		strict:   opts.StrictScope,
		maxDepth: opts.MaxDepth,
		states:   make(map[string]models.URLState),
	}
}

// Seed 设置站点作用域并将种子加入队列
// 种子必须是可解析的绝对http(s)地址, 否则返回ErrInvalidSeed
func (f *Frontier) Seed(seedURL string) (string, error) {
	canonical, err := f.canon.Canonicalize(seedURL, "")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scope != "" {
		return "", fmt.Errorf("%w: 作用域已设置为 %s", ErrInvalidSeed, f.scope)
	}
	f.scope = canonical
	f.enqueueLocked(models.WorkItem{URL: canonical, Depth: 0})

	return canonical, nil
}

// Offer 规范化候选链接并加入队列
// 过滤规则: 无法规范化、超出作用域、超过深度、已入队或已处理
// 返回新入队的数量
func (f *Frontier) Offer(candidates []string, origin string, depth int) int {
	if f.maxDepth > 0 && depth > f.maxDepth {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	for _, candidate := range candidates {
		canonical, err := f.canon.Canonicalize(candidate, origin)
		if err != nil {
			continue
		}
		if !inScope(canonical, f.scope, f.strict) {
			continue
		}
		if _, seen := f.states[canonical]; seen {
			continue
		}
		f.enqueueLocked(models.WorkItem{URL: canonical, Origin: origin, Depth: depth})
		added++
	}
	return added
}

func (f *Frontier) enqueueLocked(item models.WorkItem) {
	f.queue = append(f.queue, item)
	f.states[item.URL] = models.URLEnqueued
}

// Next 取出下一个待处理页面, 队列为空时返回false
func (f *Frontier) Next() (models.WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.head >= len(f.queue) {
		return models.WorkItem{}, false
	}
	item := f.queue[f.head]
	f.queue[f.head] = models.WorkItem{}
	f.head++

	// 已出队部分过半时压缩底层数组
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append([]models.WorkItem(nil), f.queue[f.head:]...)
		f.head = 0
	}
	return item, true
}

// MarkVisited 标记URL为已访问
func (f *Frontier) MarkVisited(canonicalURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[canonicalURL] = models.URLVisited
}

// MarkFailed 标记URL为抓取失败, 失败的URL本次运行不再重试
func (f *Frontier) MarkFailed(canonicalURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[canonicalURL] = models.URLFailed
}

// IsVisited URL是否已处理(访问成功或失败)
func (f *Frontier) IsVisited(canonicalURL string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.states[canonicalURL].Settled()
}

// State 返回URL当前状态
func (f *Frontier) State(canonicalURL string) models.URLState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.states[canonicalURL]
}

// Scope 返回站点作用域
func (f *Frontier) Scope() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.scope
}

// Canonicalizer 返回队列使用的规范化器
func (f *Frontier) Canonicalizer() *Canonicalizer {
	return f.canon
}

// PendingCount 返回当前待处理数量
func (f *Frontier) PendingCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.queue) - f.head
}

// VisitedCount 返回已处理(成功或失败)的URL数量
func (f *Frontier) VisitedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, s := range f.states {
		if s.Settled() {
			n++
		}
	}
	return n
}

// Snapshot 生成当前状态的只读快照, 各列表按字典序排列
func (f *Frontier) Snapshot() models.FrontierSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := models.FrontierSnapshot{
		Scope:   f.scope,
		Visited: []string{},
		Failed:  []string{},
		Pending: make([]string, 0, len(f.queue)-f.head),
	}
	for u, s := range f.states {
		switch s {
		case models.URLVisited:
			snap.Visited = append(snap.Visited, u)
		case models.URLFailed:
			snap.Failed = append(snap.Failed, u)
		}
	}
	for _, item := range f.queue[f.head:] {
		snap.Pending = append(snap.Pending, item.URL)
	}
	sort.Strings(snap.Visited)
	sort.Strings(snap.Failed)
	return snap
}

// inScope 判断规范化URL是否位于站点作用域内
// 非严格模式为纯字符串前缀; 严格模式还要求前缀落在路径段边界
func inScope(canonicalURL, scope string, strict bool) bool {
	if scope == "" || !strings.HasPrefix(canonicalURL, scope) {
		return false
	}
	if !strict || len(canonicalURL) == len(scope) || strings.HasSuffix(scope, "/") {
		return true
	}
	switch canonicalURL[len(scope)] {
	case '/', '#':
		return true
	}
	return false
}

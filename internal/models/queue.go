package models

// URLState 前沿队列中URL的状态
// 状态只会单向推进: Unseen -> Enqueued -> Visited | Failed
type URLState int

const (
	URLUnseen URLState = iota
	URLEnqueued
	URLVisited
	URLFailed
)

// String 返回状态名
func (s URLState) String() string {
	switch s {
	case URLEnqueued:
		return "enqueued"
	case URLVisited:
		return "visited"
	case URLFailed:
		return "failed"
	default:
		return "unseen"
	}
}

// Settled 是否已处理完毕(访问成功或失败)
func (s URLState) Settled() bool {
	return s == URLVisited || s == URLFailed
}

// WorkItem 表示队列中的一个待处理页面
type WorkItem struct {
	// URL 规范化后的页面地址
	URL string `json:"url"`

	// Origin 发现此URL的页面, 种子为空
	Origin string `json:"origin,omitempty"`

	// Depth 链接深度
	//   - 0: 种子URL
	//   - 1: 从种子页面发现的链接
	//   - 以此类推...
	Depth int `json:"depth"`
}

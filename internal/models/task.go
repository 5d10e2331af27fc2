package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// CrawlMode 抓取传输模式
type CrawlMode string

const (
	ModeStatic  CrawlMode = "static"  // 纯HTTP抓取(colly)
	ModeDynamic CrawlMode = "dynamic" // 无头浏览器渲染(rod)
)

// TaskStats 任务统计
type TaskStats struct {
	Visited       int     `json:"visited"`        // 已访问页面数(含无内容页)
	Failed        int     `json:"failed"`         // 抓取失败页面数
	Indexed       int     `json:"indexed"`        // 成功写入索引的文档数
	NoContent     int     `json:"no_content"`     // 无可索引内容的页面数
	IndexFailures int     `json:"index_failures"` // 索引写入失败次数
	Discovered    int     `json:"discovered"`     // 新加入队列的链接数
	Duration      float64 `json:"duration"`       // 总耗时(秒)
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Mode             CrawlMode `json:"mode" mapstructure:"mode"`                             // 抓取模式 (默认:dynamic)
	FetchTimeout     int       `json:"fetch_timeout" mapstructure:"fetch_timeout"`           // 单页抓取超时(秒) (默认:5)
	WaitTime         int       `json:"wait_time" mapstructure:"wait_time"`                   // 动态模式额外渲染等待(秒)
	Headless         bool      `json:"headless" mapstructure:"headless"`                     // 无头模式 (默认:true)
	MaxPages         int       `json:"max_pages" mapstructure:"max_pages"`                   // 最大处理页面数, 0为不限
	MaxDepth         int       `json:"max_depth" mapstructure:"max_depth"`                   // 最大链接深度, 0为不限
	ExpandNoContent  bool      `json:"expand_no_content" mapstructure:"expand_no_content"`   // 无内容页面是否继续展开链接
	StrictScope      bool      `json:"strict_scope" mapstructure:"strict_scope"`             // 作用域前缀需落在路径段边界
	HashRouteMarkers []string  `json:"hash_route_markers" mapstructure:"hash_route_markers"` // 哈希路由站点的路径标记段
	ShowProgress     bool      `json:"show_progress" mapstructure:"show_progress"`           // 显示进度条
	StatusEvery      int       `json:"status_every" mapstructure:"status_every"`             // 每处理N页发布一次运行状态
}

// DefaultCrawlConfig 默认爬取配置
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Mode:             ModeDynamic,
		FetchTimeout:     5,
		WaitTime:         0,
		Headless:         true,
		ExpandNoContent:  true,
		StrictScope:      true,
		HashRouteMarkers: []string{"spa"},
		ShowProgress:     true,
		StatusEvery:      10,
	}
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Mode != ModeStatic && c.Mode != ModeDynamic {
		return fmt.Errorf("无效的抓取模式: %s (有效值: static, dynamic)", c.Mode)
	}
	if c.FetchTimeout < 1 || c.FetchTimeout > 120 {
		return fmt.Errorf("抓取超时必须在1-120秒之间")
	}
	if c.WaitTime < 0 || c.WaitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("最大页面数不能为负数")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("最大深度不能为负数")
	}
	return nil
}

// FetchTimeoutDuration 单页抓取超时
func (c CrawlConfig) FetchTimeoutDuration() time.Duration {
	if c.FetchTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.FetchTimeout) * time.Second
}

// CrawlTask 爬取任务
type CrawlTask struct {
	// 基本信息
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	TargetURL   string     `json:"target_url"`             // 种子URL
	Domain      string     `json:"domain"`                 // 解析的主机名
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	Config CrawlConfig `json:"config"`

	// 执行状态
	Status TaskStatus `json:"status"`
	Mode   CrawlMode  `json:"mode"`

	Stats TaskStats `json:"stats"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCrawlTask 创建新任务
func NewCrawlTask(targetURL string, config CrawlConfig) (*CrawlTask, error) {
	if err := ValidateURL(targetURL); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(targetURL)

	return &CrawlTask{
		ID:        NewID(),
		TargetURL: targetURL,
		Domain:    parsed.Hostname(),
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
		Mode:      config.Mode,
	}, nil
}

// Start 标记任务开始
func (t *CrawlTask) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.Status = TaskStatusRunning
}

// Finish 标记任务结束, err为nil表示正常完成
func (t *CrawlTask) Finish(status TaskStatus, err error) {
	now := time.Now()
	t.CompletedAt = &now
	t.Status = status
	if err != nil {
		t.ErrorMessage = err.Error()
	}
	if t.StartedAt != nil {
		t.Stats.Duration = now.Sub(*t.StartedAt).Seconds()
	}
}

// ToJSON 序列化为JSON
func (t *CrawlTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON 从JSON反序列化
func (t *CrawlTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 任务信息
	TaskID    string     `json:"task_id"`
	TargetURL string     `json:"target_url"`
	Domain    string     `json:"domain"`
	Mode      CrawlMode  `json:"mode"`
	Status    TaskStatus `json:"status"`

	// 索引信息
	IndexName   string `json:"index_name"`
	IndexAlias  string `json:"index_alias"`
	DomainTitle string `json:"domain_title"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	Stats TaskStats `json:"stats"`

	FailedPages []FailedPage `json:"failed_pages"`

	OutputDir string `json:"output_dir"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// FailedPage 失败页面信息
type FailedPage struct {
	URL        string `json:"url"`
	Origin     string `json:"origin,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	ErrorType  string `json:"error_type"` // malformed_url, fetch_failure, panic
	ErrorMsg   string `json:"error_msg"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

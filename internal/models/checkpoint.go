package models

import (
	"encoding/json"
	"time"
)

// FrontierSnapshot 前沿队列的诊断快照
// 由诊断信号触发生成,不修改任何爬取状态
type FrontierSnapshot struct {
	TaskID string `json:"task_id"`
	Scope  string `json:"scope"` // 站点作用域(规范化后的种子URL)

	// 进度信息
	Visited []string `json:"visited"`
	Failed  []string `json:"failed"`
	Pending []string `json:"pending"`

	Stats TaskStats `json:"stats"`

	Resources *ResourceSnapshot `json:"resources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ResourceSnapshot 进程与系统资源采样
type ResourceSnapshot struct {
	TotalMemory     uint64  `json:"total_memory"`     // 系统总内存(字节)
	AvailableMemory uint64  `json:"available_memory"` // 系统可用内存(字节)
	MemoryPercent   float64 `json:"memory_percent"`   // 系统内存使用率(%)
	CPUPercent      float64 `json:"cpu_percent"`      // CPU使用率(%)
	HeapAlloc       uint64  `json:"heap_alloc"`       // 当前进程堆分配(字节)
	Goroutines      int     `json:"goroutines"`
}

// ToJSON 序列化为JSON
func (c *FrontierSnapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *FrontierSnapshot) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

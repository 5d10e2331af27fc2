package models

import "time"

// CrawlStatus 对外发布的运行状态
type CrawlStatus struct {
	RunID     string     `json:"run_id"`
	SeedURL   string     `json:"seed_url"`
	State     TaskStatus `json:"state"`
	Visited   int        `json:"visited"`
	Failed    int        `json:"failed"`
	Indexed   int        `json:"indexed"`
	NoContent int        `json:"no_content"`
	Pending   int        `json:"pending"`
	UpdatedAt time.Time  `json:"updated_at"`
}

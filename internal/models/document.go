package models

import (
	"encoding/json"
	"time"
)

// ParsedPage 链接抽取器输出的页面内容
type ParsedPage struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	OutboundURLs []string  `json:"outbound_urls"`
	CrawledAt    time.Time `json:"crawled_at"`
}

// IndexDocument 写入搜索索引的文档
// 在ParsedPage基础上附加站点标题和站点地址
type IndexDocument struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	DomainTitle  string    `json:"domain_title"`
	DomainURL    string    `json:"domain_url"`
	CrawledAt    time.Time `json:"crawled_at"`
	OutboundURLs []string  `json:"outbound_urls"`
}

// NewIndexDocument 由解析结果构造索引文档
func NewIndexDocument(page *ParsedPage, domainTitle, domainURL string) *IndexDocument {
	outbound := page.OutboundURLs
	if outbound == nil {
		outbound = []string{}
	}
	return &IndexDocument{
		ID:           NewID(),
		URL:          page.URL,
		Title:        page.Title,
		Content:      page.Content,
		DomainTitle:  domainTitle,
		DomainURL:    domainURL,
		CrawledAt:    page.CrawledAt,
		OutboundURLs: outbound,
	}
}

// ToJSON 序列化为JSON
func (d *IndexDocument) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

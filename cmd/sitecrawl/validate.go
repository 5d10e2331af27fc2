package main

import (
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(targetURL string, recreateIndex bool, maxPages, maxDepth int) error {
	if recreateIndex && targetURL != "" {
		return fmt.Errorf("--recreate-index 不能与 --url 同时使用")
	}

	// 验证URL
	if targetURL != "" {
		normalized, err := NormalizeURL(targetURL)
		if err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
		if err := models.ValidateURL(normalized); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	if maxPages < 0 {
		return fmt.Errorf("最大页面数不能为负数,当前值: %d", maxPages)
	}
	if maxDepth < 0 {
		return fmt.Errorf("最大深度不能为负数,当前值: %d", maxDepth)
	}

	return nil
}

// NormalizeURL 规范化URL
func NormalizeURL(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	// 如果没有协议,默认使用https
	if parsed.Scheme == "" {
		urlStr = "https://" + urlStr
		parsed, err = url.Parse(urlStr)
		if err != nil {
			return "", err
		}
	}

	return parsed.String(), nil
}

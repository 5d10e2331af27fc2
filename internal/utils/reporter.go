package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// 报告文件名
const (
	ReportFile      = "crawl_report.json"
	FailedPagesFile = "failed_pages.json"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
	domain    string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, domain string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		domain:    domain,
	}
}

// ReportsDir 报告目录: <outputDir>/<domain>/reports
func (r *Reporter) ReportsDir() string {
	return filepath.Join(r.outputDir, r.domain, "reports")
}

// GenerateReport 写入爬取报告和失败页面列表
func (r *Reporter) GenerateReport(report *models.CrawlReport) error {
	reportsDir := r.ReportsDir()
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.OutputDir == "" {
		report.OutputDir = filepath.Join(r.outputDir, r.domain)
	}
	failed := report.FailedPages
	if failed == nil {
		failed = []models.FailedPage{}
	}

	if err := r.saveJSONReport(reportsDir, ReportFile, report); err != nil {
		return err
	}
	if err := r.saveJSONReport(reportsDir, FailedPagesFile, failed); err != nil {
		return err
	}

	Infof("✅ 报告已生成: %s", reportsDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewCrawlProgress 创建爬取进度指示器
// 页面总数事先未知, 使用不定长模式, 只显示计数和速率
func NewCrawlProgress(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("页"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

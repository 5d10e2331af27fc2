package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/RecoveryAshes/sitecrawl/internal/core"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  sitecrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查配置
	config, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Printf("❌ 配置验证失败: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 配置有效 (抓取模式: %s)\n", config.Crawl.Mode)
	}

	// 检查浏览器
	if path, has := launcher.LookPath(); has {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地浏览器 - 动态模式首次运行时将自动下载Chromium")
		fmt.Println("   或使用静态模式: sitecrawl -m static -u <url>")
	}

	// 检查索引目录是否可写
	indexDir := filepath.Dir(config.Index.Path)
	if err := checkWritable(indexDir); err != nil {
		fmt.Printf("❌ 索引目录不可写: %s (%v)\n", indexDir, err)
		allOK = false
	} else {
		fmt.Printf("✅ 索引目录: %s\n", indexDir)
	}

	// 检查可选服务配置
	if config.Sinks.Kafka.Enabled() {
		fmt.Printf("ℹ️  Kafka文档输出: %v/%s\n", config.Sinks.Kafka.Brokers, config.Sinks.Kafka.Topic)
	}
	if config.Status.RedisAddr != "" {
		fmt.Printf("ℹ️  Redis状态发布: %s\n", config.Status.RedisAddr)
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o sitecrawl ./cmd/sitecrawl' 构建项目")
		fmt.Println("  2. 运行 './sitecrawl --help' 查看帮助")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}

// checkWritable 检查目录是否可写
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".verify-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

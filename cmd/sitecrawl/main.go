package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/core"
	"github.com/RecoveryAshes/sitecrawl/internal/crawlers"
	"github.com/RecoveryAshes/sitecrawl/internal/index"
	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/status"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	logLevel   string
	debug      bool
	indexName  string
	indexPath  string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 爬取参数
	targetURL     string
	mode          string
	recreateIndex bool
	maxPages      int
	maxDepth      int

	// 检索参数
	searchLimit int
)

// appConfig 由PersistentPreRunE加载, 已合并命令行参数
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "sitecrawl",
	Short: "单站点爬取与全文索引工具",
	Long: `sitecrawl - 单站点网页爬取与全文索引工具

从种子URL出发, 在同一站点作用域内抓取页面, 提取正文与链接并写入本地全文索引:
  • 静态(HTTP)与动态(无头浏览器)抓取模式
  • URL规范化与去重, 支持哈希路由文档站点
  • 单页失败隔离, 失败页面写入报告
  • 每次爬取构建新索引, 完成后原子切换别名

示例:
  # 爬取站点并写入默认索引
  sitecrawl -u https://docs.example.com/guide/

  # 静态模式, 指定索引名与自定义头部
  sitecrawl -u https://example.com -m static -i handbook -H "Authorization: Bearer token"

  # 仅重建空索引
  sitecrawl --recreate-index -i handbook

  # 检索
  sitecrawl search "install guide" -i handbook

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		config.MergeCLIFlags(core.CLIFlags{
			Mode:      mode,
			IndexName: indexName,
			IndexPath: indexPath,
			LogLevel:  logLevel,
			Debug:     debug,
			MaxPages:  maxPages,
			MaxDepth:  maxDepth,
		})

		if err := utils.InitLogger(config.Logging.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		utils.Debugf("调试模式已启用")

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		headerManager, err := core.NewHeaderManager(appConfig.Fetch.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		// 如果用户请求验证配置
		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if targetURL == "" && !recreateIndex {
			return cmd.Help()
		}

		if err := ValidateFlags(targetURL, recreateIndex, maxPages, maxDepth); err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		store, err := index.Open(appConfig.Index.Path)
		if err != nil {
			return fmt.Errorf("打开索引失败: %w", err)
		}
		defer store.Close()

		if recreateIndex {
			name, err := store.RecreateIndex(context.Background(), appConfig.Index.Name)
			if err != nil {
				return fmt.Errorf("重建索引失败: %w", err)
			}
			utils.Infof("🗑️  索引已重建: %s -> %s", appConfig.Index.Name, name)
			return nil
		}

		seed, err := NormalizeURL(targetURL)
		if err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
		return runCrawl(seed, store, headerManager)
	},
}

// runValidateConfig 验证配置与头部, 输出脱敏后的有效头部
func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	utils.Info("✅ 配置验证通过!")
	utils.Infof("索引: %s (%s)", appConfig.Index.Name, appConfig.Index.Path)
	utils.Infof("抓取模式: %s, 超时: %d秒", appConfig.Crawl.Mode, appConfig.Crawl.FetchTimeout)
	utils.Infof("当前有效的HTTP头部: %s", headerManager.SafeHeaders())
	return nil
}

// runCrawl 在新索引中执行一次爬取, 成功后切换别名
func runCrawl(seed string, store *index.Store, headerManager *core.HeaderManager) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理(Ctrl+C优雅退出), 第二次信号立即退出
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		utils.Warnf("收到中断信号: %v, 当前页面完成后停止...", sig)
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	alias := appConfig.Index.Name
	handle, err := store.CreateIndex(ctx, index.NewIndexName(alias, time.Now()))
	if err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}
	utils.Infof("📚 写入新索引: %s (别名 %s)", handle.Name(), alias)

	var sink index.Sink = handle
	if kc := appConfig.Sinks.Kafka; kc.Enabled() {
		kafkaSink := index.NewKafkaSink(kc.Brokers, kc.Topic)
		defer kafkaSink.Close()
		sink = index.MultiSink{handle, kafkaSink}
		utils.Infof("文档同步写入Kafka: %v/%s", kc.Brokers, kc.Topic)
	}

	var statusStore status.Store
	if sc := appConfig.Status; sc.RedisAddr != "" {
		redisStore := status.NewRedisStore(sc.RedisAddr, sc.Prefix, sc.TTL)
		defer redisStore.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			utils.Warnf("Redis不可用, 不发布运行状态: %v", err)
		} else {
			statusStore = redisStore
		}
		pingCancel()
	}

	utils.Debugf("请求头部: %s", headerManager.SafeHeaders())
	fetcher, err := crawlers.NewFetcher(appConfig.Crawl, headerManager)
	if err != nil {
		dropIndex(store, handle.Name())
		return fmt.Errorf("创建抓取器失败: %w", err)
	}
	defer fetcher.Close()

	crawler, err := core.NewCrawler(seed, appConfig.Crawl, core.CrawlerOptions{
		Fetcher:    fetcher,
		Sink:       sink,
		Status:     statusStore,
		Progress:   os.Stderr,
		IndexName:  handle.Name(),
		IndexAlias: alias,
		ReportDir:  appConfig.Output.ReportDir,
	})
	if err != nil {
		dropIndex(store, handle.Name())
		return fmt.Errorf("创建爬取器失败: %w", err)
	}

	stopDump := watchDumpSignal(crawler)
	defer stopDump()

	report, err := crawler.Run(ctx)
	if err != nil {
		dropIndex(store, handle.Name())
		if errors.Is(err, context.Canceled) {
			utils.Warnf("爬取已取消, 别名 %s 保持不变", alias)
			return nil
		}
		return fmt.Errorf("爬取失败: %w", err)
	}

	if err := store.SwapAlias(context.Background(), alias, handle.Name()); err != nil {
		return fmt.Errorf("切换索引别名失败: %w", err)
	}

	printSummary(report)
	utils.Info("✨ 爬取任务完成!")
	return nil
}

// dropIndex 删除未完成的索引, 失败只记录日志
func dropIndex(store *index.Store, name string) {
	if err := store.DropIndex(context.Background(), name); err != nil {
		utils.Warnf("删除未完成索引 %s 失败: %v", name, err)
	}
}

func printSummary(report *models.CrawlReport) {
	stats := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("🌐 站点: %s\n", report.DomainTitle)
	fmt.Printf("📚 索引: %s -> %s\n", report.IndexAlias, report.IndexName)
	fmt.Printf("✅ 访问页面数: %d\n", stats.Visited)
	fmt.Printf("✅ 已索引文档: %d\n", stats.Indexed)
	fmt.Printf("⚪ 无内容页面: %d\n", stats.NoContent)
	fmt.Printf("🔗 发现链接数: %d\n", stats.Discovered)
	fmt.Printf("❌ 失败页面: %d\n", stats.Failed)
	fmt.Printf("❌ 索引写入失败: %d\n", stats.IndexFailures)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "在索引中检索",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := index.Open(appConfig.Index.Path)
		if err != nil {
			return fmt.Errorf("打开索引失败: %w", err)
		}
		defer store.Close()

		hits, err := store.Search(cmd.Context(), appConfig.Index.Name, args[0], searchLimit)
		if err != nil {
			return fmt.Errorf("检索失败: %w", err)
		}
		if len(hits) == 0 {
			fmt.Println("未找到匹配的页面")
			return nil
		}
		for i, hit := range hits {
			fmt.Printf("%2d. [%.4f] %s\n    %s\n", i+1, hit.Score, hit.Title, hit.URL)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitecrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().StringVarP(&indexName, "index", "i", "", "索引名(别名), 默认 webpages")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index-path", "", "索引数据库文件路径")

	// HTTP头部参数
	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 爬取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "种子URL")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "抓取模式 (dynamic|static)")
	rootCmd.Flags().BoolVar(&recreateIndex, "recreate-index", false, "仅重建空索引, 不爬取")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "最大处理页面数 (0为不限)")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "最大链接深度 (0为不限)")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "返回结果数")

	// 添加子命令
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

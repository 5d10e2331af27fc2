package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/index"
	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/RecoveryAshes/sitecrawl/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 SITECRAWL_CRAWL_MODE=static
const EnvPrefix = "SITECRAWL"

// Config 应用程序配置
type Config struct {
	Crawl   models.CrawlConfig `mapstructure:"crawl"`
	Index   IndexConfig        `mapstructure:"index"`
	Sinks   SinksConfig        `mapstructure:"sinks"`
	Status  StatusConfig       `mapstructure:"status"`
	Fetch   FetchConfig        `mapstructure:"fetch"`
	Output  OutputConfig       `mapstructure:"output"`
	Logging LoggingConfig      `mapstructure:"logging"`
}

// IndexConfig 索引配置
type IndexConfig struct {
	Path string `mapstructure:"path"` // SQLite数据库文件
	Name string `mapstructure:"name"` // 索引别名
}

// SinksConfig 附加文档输出
type SinksConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig Kafka文档流配置, brokers为空时不启用
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled 是否启用
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// StatusConfig 运行状态发布配置, redis_addr为空时不启用
type StatusConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// FetchConfig 抓取请求配置
type FetchConfig struct {
	Headers map[string]string `mapstructure:"headers"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LogConfig 转换为日志系统配置
func (l LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      l.Level,
		LogDir:     l.LogDir,
		MaxSize:    l.Rotation.MaxSize,
		MaxBackups: l.Rotation.MaxBackups,
		MaxAge:     l.Rotation.MaxAge,
		Compress:   l.Rotation.Compress,
	}
}

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs, ., ~/.sitecrawl 下的 config.yaml, 都不存在时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitecrawl"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	crawl := models.DefaultCrawlConfig()

	// 爬取配置默认值
	v.SetDefault("crawl.mode", string(crawl.Mode))
	v.SetDefault("crawl.fetch_timeout", crawl.FetchTimeout)
	v.SetDefault("crawl.wait_time", crawl.WaitTime)
	v.SetDefault("crawl.headless", crawl.Headless)
	v.SetDefault("crawl.max_pages", crawl.MaxPages)
	v.SetDefault("crawl.max_depth", crawl.MaxDepth)
	v.SetDefault("crawl.expand_no_content", crawl.ExpandNoContent)
	v.SetDefault("crawl.strict_scope", crawl.StrictScope)
	v.SetDefault("crawl.hash_route_markers", crawl.HashRouteMarkers)
	v.SetDefault("crawl.show_progress", crawl.ShowProgress)
	v.SetDefault("crawl.status_every", crawl.StatusEvery)

	// 索引
	v.SetDefault("index.path", index.DefaultPath())
	v.SetDefault("index.name", "webpages")

	// 附加输出与状态发布默认关闭
	v.SetDefault("sinks.kafka.brokers", []string{})
	v.SetDefault("sinks.kafka.topic", "webpages")
	v.SetDefault("status.redis_addr", "")
	v.SetDefault("status.prefix", "sitecrawl:status:")
	v.SetDefault("status.ttl", 24*time.Hour)

	v.SetDefault("fetch.headers", map[string]string{})

	// 输出配置默认值
	v.SetDefault("output.report_dir", "output")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// CLIFlags 可覆盖配置文件的命令行参数, 零值表示未指定
type CLIFlags struct {
	Mode      string
	IndexName string
	IndexPath string
	LogLevel  string
	Debug     bool
	MaxPages  int
	MaxDepth  int
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(flags CLIFlags) {
	if flags.Mode != "" {
		c.Crawl.Mode = models.CrawlMode(flags.Mode)
	}
	if flags.IndexName != "" {
		c.Index.Name = flags.IndexName
	}
	if flags.IndexPath != "" {
		c.Index.Path = flags.IndexPath
	}
	if flags.LogLevel != "" {
		c.Logging.Level = flags.LogLevel
	}
	if flags.Debug {
		c.Logging.Level = "debug"
	}
	if flags.MaxPages > 0 {
		c.Crawl.MaxPages = flags.MaxPages
	}
	if flags.MaxDepth > 0 {
		c.Crawl.MaxDepth = flags.MaxDepth
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Index.Name) == "" {
		return fmt.Errorf("索引名不能为空")
	}
	if c.Crawl.StatusEvery < 0 {
		return fmt.Errorf("状态发布间隔不能为负数")
	}
	if c.Sinks.Kafka.Enabled() && c.Sinks.Kafka.Topic == "" {
		return fmt.Errorf("启用Kafka时必须指定topic")
	}
	return nil
}

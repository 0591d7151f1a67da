// Package config 负责加载和管理应用程序的配置。
package config

import (
	"doc-organizer-go/pkg/log"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// EnvPrefix 环境变量前缀，例如 DOCORG_SEARCH_MIN_SCORE 覆盖 search.min_score。
const EnvPrefix = "DOCORG"

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Search        SearchConfig        `mapstructure:"search"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// Addresses 或 IndexName 为空时托管检索视为未配置，直接走本地检索。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	// InferenceID 是 text_similarity_reranker 使用的重排序推理端点，为空时语义模式降级为普通检索。
	InferenceID     string `mapstructure:"inference_id"`
	VectorDims      int    `mapstructure:"vector_dims"`
	InsecureSkipTLS bool   `mapstructure:"insecure_skip_tls"`
}

// SearchConfig 存储检索编排相关的配置。
type SearchConfig struct {
	MinScore        float64       `mapstructure:"min_score"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	MaxLimit        int           `mapstructure:"max_limit"`
	MaxQueryLength  int           `mapstructure:"max_query_length"`
	// MaxResultWindow 限制 offset+limit，需与索引的 index.max_result_window 一致
	MaxResultWindow int           `mapstructure:"max_result_window"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
	HistoryTimeout  time.Duration `mapstructure:"history_timeout"`
	Popular         PopularConfig `mapstructure:"popular"`
}

// BreakerConfig 配置托管检索调用外层的熔断器。
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// PopularConfig 配置热门搜索的缓存。
type PopularConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// UploadConfig 限制上传文件。
type UploadConfig struct {
	MaxFileSizeMB     int64    `mapstructure:"max_file_size_mb"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置，用于生成文档摘要、关键词与意图。
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// MaxInputChars 截断送入模型的正文长度
	MaxInputChars int `mapstructure:"max_input_chars"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("kafka.group_id", "doc-organizer-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("tika.timeout", 60*time.Second)
	v.SetDefault("elasticsearch.vector_dims", 1536)

	v.SetDefault("search.min_score", 0.5)
	v.SetDefault("search.timeout", 5*time.Second)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.max_query_length", 512)
	v.SetDefault("search.max_result_window", 10000)
	v.SetDefault("search.rate_limit", 20.0)
	v.SetDefault("search.rate_burst", 40)
	v.SetDefault("search.history_timeout", 3*time.Second)
	v.SetDefault("search.breaker.max_requests", 1)
	v.SetDefault("search.breaker.interval", 60*time.Second)
	v.SetDefault("search.breaker.timeout", 30*time.Second)
	v.SetDefault("search.breaker.min_requests", 5)
	v.SetDefault("search.breaker.failure_ratio", 0.6)
	v.SetDefault("search.popular.cache_ttl", 60*time.Second)

	v.SetDefault("upload.max_file_size_mb", 50)
	v.SetDefault("upload.allowed_extensions", []string{".pdf", ".png", ".jpg", ".jpeg", ".txt", ".doc", ".docx"})
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.max_input_chars", 6000)
}

// Load 读取指定路径的 YAML 文件并叠加环境变量，返回独立的 viper 实例和解析结果。
func Load(configPath string) (*viper.Viper, Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return nil, cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return v, cfg, nil
}

// Init 初始化配置加载，解析到全局 Conf 变量中，失败时 panic。
// onChange 非空时开启文件监听，配置文件变更后以新配置回调。
func Init(configPath string, onChange func(Config)) {
	v, cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg

	if onChange == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := reload(v, onChange); err != nil {
			log.Errorf("[Config] 配置文件 %s 变更后解析失败, 保留当前配置: %v", e.Name, err)
		}
	})
	v.WatchConfig()
}

// reload 解析变更后的配置，失败时不回调。
func reload(v *viper.Viper, onChange func(Config)) error {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	onChange(next)
	return nil
}

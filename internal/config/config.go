// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
// 网关和同步 worker 共用同一 schema，通过章节区分
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Mongo     MongoConfig     `yaml:"mongo"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	SyncQueue SyncQueueConfig `yaml:"sync_queue"`
	RespCache RespCacheConfig `yaml:"resp_cache"`
	Origin    OriginConfig    `yaml:"origin"`
	AI        AIConfig        `yaml:"ai"`
	Auth      AuthConfig      `yaml:"auth"`
	Chat      ChatConfig      `yaml:"chat"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// MongoConfig 聊天历史存储配置
type MongoConfig struct {
	URI      string `yaml:"uri"` // 显式 URI 优先
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// EventBusConfig 同步事件总线配置
type EventBusConfig struct {
	Driver string      `yaml:"driver"` // redis | etcd | mem
	Redis  RedisConfig `yaml:"redis"`
	Etcd   EtcdConfig  `yaml:"etcd"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// SyncQueueConfig 离线写任务队列配置
type SyncQueueConfig struct {
	Driver   string         `yaml:"driver"` // sqlite | postgres
	Path     string         `yaml:"path"`   // sqlite 文件路径
	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
}

// RespCacheConfig 响应缓存配置
type RespCacheConfig struct {
	Path string `yaml:"path"` // sqlite 文件路径
}

// OriginConfig 应用外壳资源源站配置
type OriginConfig struct {
	Mode  string      `yaml:"mode"` // proxy | minio
	URL   string      `yaml:"url"`  // proxy 模式的上游地址
	MinIO MinIOConfig `yaml:"minio"`
}

// MinIOConfig MinIO 对象存储配置
// 注意：AccessKey/SecretKey 只从环境变量读取，不存储在 YAML 中
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"` // 只从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"` // 只从 MINIO_SECRET_KEY 环境变量读取
}

// Duration 支持 "60s" / "5m" 写法的时长配置字段
//
// yaml.v3 无法直接把字符串标量解码进 time.Duration，
// 需要在这里显式走 time.ParseDuration。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换为标准库时长
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AIConfig 模型服务配置
// 注意：APIKey 只从 GEMINI_API_KEY 环境变量读取
type AIConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	APIKey      string   `yaml:"-"`
}

// AuthConfig 认证配置
// 注意：JWTSecret 只从 JWT_SECRET 环境变量读取
type AuthConfig struct {
	UpstreamURL string `yaml:"upstream_url"` // 身份服务地址，/api/v1/auth/* 透传目标
	JWTSecret   string `yaml:"-"`
}

// ChatConfig 弹性存储客户端可调参数，零值使用内置默认值
type ChatConfig struct {
	MaxRetries     int      `yaml:"max_retries"`      // 瞬时错误重试次数
	RetryBaseDelay Duration `yaml:"retry_base_delay"` // 线性退避基数
	CacheSize      int      `yaml:"cache_size"`       // 查询结果缓存容量
	CacheTTL       Duration `yaml:"cache_ttl"`        // 查询结果缓存 TTL
}

// WorkerConfig 同步 worker 配置
type WorkerConfig struct {
	GatewayURL    string   `yaml:"gateway_url"`    // 重放写任务的目标网关
	MaxAttempts   int      `yaml:"max_attempts"`   // 0 表示不设上限
	DrainInterval Duration `yaml:"drain_interval"` // 兜底轮询间隔
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	APIPort        string
	MongoURI       string
	MongoDatabase  string
	EventBusDriver string
	RedisURL       string
	Etcd           EtcdConfig
	QueueDriver    string
	QueueDSN       string
	RespCacheDSN   string
	Origin         OriginConfig
	AI             AIConfig
	Auth           AuthConfig
	Chat           ChatConfig
	Worker         WorkerConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	yamlCfg.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	yamlCfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	yamlCfg.Origin.MinIO.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	yamlCfg.Origin.MinIO.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	mongoPassword := os.Getenv("MONGO_PASSWORD")
	dbPassword := getEnv("DB_PASSWORD", "entropy_dev_password")

	// 构建最终配置
	cfg := &Config{
		Env:            env,
		APIPort:        yamlCfg.Server.Port,
		MongoURI:       buildMongoURI(yamlCfg.Mongo, mongoPassword),
		MongoDatabase:  yamlCfg.Mongo.Database,
		EventBusDriver: yamlCfg.EventBus.Driver,
		RedisURL:       buildRedisURL(yamlCfg.EventBus.Redis),
		Etcd:           yamlCfg.EventBus.Etcd,
		QueueDriver:    detectQueueDriver(yamlCfg.SyncQueue),
		QueueDSN:       buildQueueDSN(yamlCfg.SyncQueue, dbPassword),
		RespCacheDSN:   buildSQLiteDSN(yamlCfg.RespCache.Path),
		Origin:         yamlCfg.Origin,
		AI:             yamlCfg.AI,
		Auth:           yamlCfg.Auth,
		Chat:           yamlCfg.Chat,
		Worker:         yamlCfg.Worker,
	}

	cfg.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		Mongo:  MongoConfig{Host: "localhost", Port: 27017, Database: "entropy"},
		EventBus: EventBusConfig{
			Driver: "redis",
			Redis:  RedisConfig{Host: "localhost", Port: 6379, DB: 0},
			Etcd:   EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/entropy"},
		},
		SyncQueue: SyncQueueConfig{
			Driver:   "sqlite",
			Path:     "data/sync.db",
			Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "entropy", Name: "entropy_sync", SSLMode: "disable"},
		},
		RespCache: RespCacheConfig{Path: "data/respcache.db"},
		Origin:    OriginConfig{Mode: "proxy", URL: "http://localhost:5173"},
		AI: AIConfig{
			BaseURL:     "https://generativelanguage.googleapis.com",
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			MaxTokens:   8192,
			Timeout:     Duration(60 * time.Second),
		},
		Auth:   AuthConfig{UpstreamURL: "http://localhost:8081"},
		Worker: WorkerConfig{GatewayURL: "http://localhost:8080", DrainInterval: Duration(5 * time.Minute)},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				log.Printf("WARNING: config: parse %s failed: %v", path, err)
			}
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				log.Printf("WARNING: config: parse %s failed: %v", path, err)
			}
			break
		}
	}

	return cfg
}

// buildMongoURI 构建 MongoDB 连接字符串
func buildMongoURI(m MongoConfig, password string) string {
	if m.URI != "" {
		return m.URI
	}
	if m.User != "" && password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", m.User, password, m.Host, m.Port)
	}
	return fmt.Sprintf("mongodb://%s:%d", m.Host, m.Port)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig) string {
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

// buildSQLiteDSN 构建 SQLite 连接字符串
func buildSQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
}

// detectQueueDriver 检测队列驱动类型
func detectQueueDriver(q SyncQueueConfig) string {
	if d := strings.ToLower(q.Driver); d == "sqlite" || d == "postgres" {
		return d
	}
	return "sqlite"
}

// buildQueueDSN 根据驱动类型构建队列连接字符串
func buildQueueDSN(q SyncQueueConfig, password string) string {
	if detectQueueDriver(q) == "postgres" {
		db := q.Database
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
	}
	path := q.Path
	if path == "" {
		path = "data/sync.db"
	}
	return buildSQLiteDSN(path)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Mongo: %s, Redis: %s, Queue: %s}",
		c.Env, maskPassword(c.MongoURI), c.RedisURL, maskPassword(c.QueueDSN))
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "entropy"
	}
	switch strings.ToLower(c.EventBusDriver) {
	case "redis", "etcd", "mem":
		c.EventBusDriver = strings.ToLower(c.EventBusDriver)
	default:
		c.EventBusDriver = "redis"
	}
	if c.Origin.Mode != "minio" {
		c.Origin.Mode = "proxy"
	}
	if c.Auth.UpstreamURL != "" {
		if u, err := url.Parse(c.Auth.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
			log.Printf("WARNING: config: invalid auth upstream_url %q, auth proxy disabled", c.Auth.UpstreamURL)
			c.Auth.UpstreamURL = ""
		}
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = Duration(60 * time.Second)
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 8192
	}
	if c.Worker.DrainInterval == 0 {
		c.Worker.DrainInterval = Duration(5 * time.Minute)
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了引导服务在启动阶段需要加载的核心配置。
type Config struct {
	Server       ServerConfig       `json:"server"`
	Storage      StorageConfig      `json:"storage"`
	ConfirmQueue ConfirmQueueConfig `json:"confirm_queue"`
	Linking      LinkingConfig      `json:"linking"`
	Messenger    MessengerConfig    `json:"messenger"`
	Web3         Web3Config         `json:"web3"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述记录存储后端的连接信息。
type StorageConfig struct {
	Records RecordStoreConfig `json:"records"`
}

// RecordStoreConfig 描述引导记录存储，默认提供内存实现。
type RecordStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ConfirmQueueConfig 描述确认事件队列的驱动与连接参数。
type ConfirmQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数，绑定码注册表复用同一份配置。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LinkingConfig 控制绑定码的签发策略。
type LinkingConfig struct {
	Registry       string `json:"registry"`
	CodeTTLSeconds int    `json:"code_ttl_seconds"`
	AutoConfirm    bool   `json:"auto_confirm"`
}

// CodeTTL 返回绑定码的有效期。
func (c LinkingConfig) CodeTTL() time.Duration {
	if c.CodeTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

// MessengerConfig 指定消息机器人档案文件。
type MessengerConfig struct {
	ProfilePath string `json:"profile_path"`
}

// Web3Config 指定网络目录文件与默认部署网络。
type Web3Config struct {
	NetworksPath   string `json:"networks_path"`
	DefaultNetwork string `json:"default_network"`
	ProbeOnStart   bool   `json:"probe_on_start"`
}

// LoggingConfig 控制日志输出与审计文件。
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	AuditPath   string `json:"audit_path"`
	MaxSizeMB   int    `json:"audit_max_size_mb"`
	MaxBackups  int    `json:"audit_max_backups"`
	AuditToFile bool   `json:"audit_to_file"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Records.Driver == "" {
		c.Storage.Records.Driver = "memory"
	}

	if c.ConfirmQueue.Driver == "" {
		c.ConfirmQueue.Driver = "memory"
	}
	if c.ConfirmQueue.Worker <= 0 {
		c.ConfirmQueue.Worker = 2
	}

	if c.Linking.Registry == "" {
		c.Linking.Registry = "memory"
	}
	if c.Linking.CodeTTLSeconds <= 0 {
		c.Linking.CodeTTLSeconds = 900
	}

	if c.Messenger.ProfilePath != "" && !filepath.IsAbs(c.Messenger.ProfilePath) {
		c.Messenger.ProfilePath = filepath.Join(baseDir, c.Messenger.ProfilePath)
	}
	if c.Web3.NetworksPath != "" && !filepath.IsAbs(c.Web3.NetworksPath) {
		c.Web3.NetworksPath = filepath.Join(baseDir, c.Web3.NetworksPath)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.AuditToFile && c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(baseDir, "audit", "onboarding.log")
	}
}

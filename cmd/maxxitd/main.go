package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"Maxxit-Agent/internal/api"
	"Maxxit-Agent/internal/config"
	"Maxxit-Agent/internal/messenger"
	"Maxxit-Agent/internal/observability/alerting"
	"Maxxit-Agent/internal/onboarding"
	"Maxxit-Agent/internal/web3"
	"Maxxit-Agent/pkg/logger"
)

// main 是引导守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("maxxitd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// 本地开发允许通过 .env 注入环境变量，文件不存在时静默跳过。
	_ = godotenv.Load()

	configPath := os.Getenv("MAXXIT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "maxxit.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.AuditToFile,
			Path:       cfg.Logging.AuditPath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	prov := onboarding.NewProvisioner(nil)
	registry, err := buildRegistry(cfg, prov)
	if err != nil {
		return err
	}

	profile, err := messenger.LoadProfile(cfg.Messenger.ProfilePath)
	if err != nil {
		return err
	}

	network := cfg.Web3.DefaultNetwork
	if network == "" {
		network = onboarding.DefaultNetwork
	}
	if err := probeNetwork(ctx, cfg.Web3, network); err != nil {
		return err
	}

	alerter := alerting.NewFanout(&alerting.LogNotifier{})

	service := onboarding.NewService(store, registry, prov,
		onboarding.WithProfile(profile),
		onboarding.WithNetwork(network),
		onboarding.WithAutoConfirm(cfg.Linking.AutoConfirm),
		onboarding.WithAlertDispatcher(alerter),
	)
	defer func() {
		_ = service.Close()
	}()

	queue, err := buildQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭确认队列失败", slog.Any("error", err))
		}
	}()

	listener := onboarding.NewListener(service, queue,
		onboarding.WithListenerWorkers(cfg.ConfirmQueue.Worker),
		onboarding.WithListenerAlerts(alerter),
	)

	listenerCtx, listenerCancel := context.WithCancel(ctx)
	defer listenerCancel()

	go func() {
		if err := listener.Start(listenerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("确认监听器异常退出", slog.Any("error", err))
		}
	}()

	logger.L().Info("maxxitd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("network", network),
		slog.Bool("auto_confirm", cfg.Linking.AutoConfirm),
	)

	server := api.NewServer(cfg.Server.Address, service)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStore 根据配置选择记录存储驱动。
func buildStore(cfg *config.Config) (onboarding.Store, error) {
	switch cfg.Storage.Records.Driver {
	case "", "memory":
		return onboarding.NewMemoryStore(), nil
	case "mysql":
		return onboarding.NewMySQLStore(cfg.Storage.Records.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Records.Driver)
	}
}

// buildRegistry 根据配置选择绑定码注册表驱动。
func buildRegistry(cfg *config.Config, prov *onboarding.Provisioner) (onboarding.Registry, error) {
	ttl := cfg.Linking.CodeTTL()
	switch cfg.Linking.Registry {
	case "", "memory":
		return onboarding.NewMemoryRegistry(prov, ttl), nil
	case "redis":
		return onboarding.NewRedisRegistry(prov, onboarding.RedisRegistryConfig{
			Address:  cfg.ConfirmQueue.Redis.Address,
			Password: cfg.ConfirmQueue.Redis.Password,
			DB:       cfg.ConfirmQueue.Redis.DB,
			CodeTTL:  ttl,
		})
	default:
		return nil, fmt.Errorf("未知的注册表驱动: %s", cfg.Linking.Registry)
	}
}

// buildQueue 根据配置选择确认事件队列驱动。
func buildQueue(cfg *config.Config) (onboarding.Queue, error) {
	switch cfg.ConfirmQueue.Driver {
	case "", "memory":
		return onboarding.NewMemoryQueue(1024), nil
	case "redis":
		return onboarding.NewRedisQueue(onboarding.RedisQueueConfig{
			Address:   cfg.ConfirmQueue.Redis.Address,
			Password:  cfg.ConfirmQueue.Redis.Password,
			DB:        cfg.ConfirmQueue.Redis.DB,
			Queue:     cfg.ConfirmQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.ConfirmQueue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return onboarding.NewRabbitMQQueue(onboarding.RabbitMQConfig{
			URL:        cfg.ConfirmQueue.RabbitMQ.URL,
			Queue:      cfg.ConfirmQueue.RabbitMQ.Queue,
			Prefetch:   cfg.ConfirmQueue.RabbitMQ.Prefetch,
			Durable:    cfg.ConfirmQueue.RabbitMQ.Durable,
			AutoDelete: cfg.ConfirmQueue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.ConfirmQueue.Driver)
	}
}

// probeNetwork 在开启探测时校验默认网络的 RPC 可达性与链标识。
func probeNetwork(ctx context.Context, cfg config.Web3Config, network string) error {
	defs, err := web3.LoadNetworkDefinitions(cfg.NetworksPath)
	if err != nil {
		return err
	}
	def, ok := defs.Lookup(network)
	if !ok {
		if cfg.NetworksPath != "" {
			return fmt.Errorf("网络目录中找不到 %s", network)
		}
		return nil
	}
	if !cfg.ProbeOnStart {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return web3.Probe(probeCtx, network, def)
}

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistryConfig 描述 Redis 注册表的连接参数。
type RedisRegistryConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	CodeTTL   time.Duration
}

// RedisRegistry 使用 Redis 保存绑定码映射，TTL 由 Redis 的键过期实现。
type RedisRegistry struct {
	client *redis.Client
	prov   *Provisioner
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry 创建 Redis 注册表实例。
func NewRedisRegistry(prov *Provisioner, cfg RedisRegistryConfig) (*RedisRegistry, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	if prov == nil {
		prov = NewProvisioner(nil)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "maxxit:link"
	}
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisRegistry{client: client, prov: prov, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisRegistry) codeKey(code string) string {
	return r.prefix + ":code:" + code
}

func (r *RedisRegistry) walletKey(walletID string) string {
	return r.prefix + ":wallet:" + walletID
}

// Issue 实现 Registry 接口。SETNX 保证不会覆盖其他钱包的现存绑定码。
func (r *RedisRegistry) Issue(ctx context.Context, walletID string) (string, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return "", errors.New("钱包标识不能为空")
	}

	if code, err := r.client.Get(ctx, r.walletKey(walletID)).Result(); err == nil && code != "" {
		// 钱包索引可能比绑定码键晚过期，复用前必须确认归属未被其他钱包抢占。
		owner, ownerErr := r.client.Get(ctx, r.codeKey(code)).Result()
		if ownerErr == nil && owner == walletID {
			return code, nil
		}
		if ownerErr != nil && !errors.Is(ownerErr, redis.Nil) {
			return "", fmt.Errorf("校验绑定码归属失败: %w", ownerErr)
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("查询现存绑定码失败: %w", err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := r.prov.NewCode()
		ok, err := r.client.SetNX(ctx, r.codeKey(code), walletID, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("写入绑定码失败: %w", err)
		}
		if !ok {
			continue
		}
		if err := r.client.Set(ctx, r.walletKey(walletID), code, r.ttl).Err(); err != nil {
			return "", fmt.Errorf("写入钱包索引失败: %w", err)
		}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// Lookup 实现 Registry 接口。
func (r *RedisRegistry) Lookup(ctx context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrCodeNotFound
	}
	walletID, err := r.client.Get(ctx, r.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("查询绑定码失败: %w", err)
	}
	return walletID, nil
}

// Outstanding 实现 Registry 接口。
func (r *RedisRegistry) Outstanding(ctx context.Context, walletID string) (string, bool, error) {
	code, err := r.client.Get(ctx, r.walletKey(strings.TrimSpace(walletID))).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询钱包索引失败: %w", err)
	}
	return code, code != "", nil
}

// Close 关闭 Redis 连接。
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// ensure interface compliance at compile time
var _ Registry = (*RedisRegistry)(nil)

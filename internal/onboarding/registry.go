package onboarding

import (
	"context"
	"time"
)

// DefaultCodeTTL 是绑定码的默认有效期。
const DefaultCodeTTL = 15 * time.Minute

// maxCodeAttempts 限制签发时因碰撞而重掷的次数。
const maxCodeAttempts = 8

// Registry 抽象了绑定码与钱包映射的存储。签发方拥有 code→wallet 的所有权，
// 引导记录只保存确认成功的结果而非绑定码本身。
type Registry interface {
	// Issue 为钱包签发绑定码。钱包已有未过期的绑定码时直接返回该码，
	// 避免轮询期间的码频繁更替；与现存映射碰撞时重掷。
	Issue(ctx context.Context, walletID string) (string, error)
	// Lookup 返回绑定码对应的钱包。码不存在或已过期返回 ErrCodeNotFound。
	Lookup(ctx context.Context, code string) (string, error)
	// Outstanding 返回钱包当前未过期的绑定码。
	Outstanding(ctx context.Context, walletID string) (string, bool, error)
	Close() error
}

package onboarding

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "Maxxit-Agent/internal/errors"
)

// MemoryRegistry 以内存方式保存绑定码映射，主要用于测试与演示部署。
type MemoryRegistry struct {
	mu       sync.Mutex
	prov     *Provisioner
	ttl      time.Duration
	codes    map[string]registryEntry
	byWallet map[string]string
	now      func() time.Time
}

type registryEntry struct {
	walletID  string
	expiresAt time.Time
}

// NewMemoryRegistry 创建 MemoryRegistry。ttl 非正时使用 DefaultCodeTTL。
func NewMemoryRegistry(prov *Provisioner, ttl time.Duration) *MemoryRegistry {
	if prov == nil {
		prov = NewProvisioner(nil)
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &MemoryRegistry{
		prov:     prov,
		ttl:      ttl,
		codes:    make(map[string]registryEntry),
		byWallet: make(map[string]string),
		now:      time.Now,
	}
}

// Issue 实现 Registry 接口。
func (r *MemoryRegistry) Issue(_ context.Context, walletID string) (string, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return "", xerrors.New(CodeValidation, "钱包标识不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if code, ok := r.byWallet[walletID]; ok {
		// 只复用仍归属当前钱包的绑定码；过期后被其他钱包抢占的码不能复用。
		if entry, live := r.codes[code]; live && entry.walletID == walletID && entry.expiresAt.After(now) {
			return code, nil
		}
		delete(r.byWallet, walletID)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := r.prov.NewCode()
		if entry, ok := r.codes[code]; ok {
			if entry.expiresAt.After(now) && entry.walletID != walletID {
				continue
			}
			// 抢占过期码时清理原持有者的反向索引。
			if entry.walletID != walletID && r.byWallet[entry.walletID] == code {
				delete(r.byWallet, entry.walletID)
			}
		}
		r.codes[code] = registryEntry{walletID: walletID, expiresAt: now.Add(r.ttl)}
		r.byWallet[walletID] = code
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// Lookup 实现 Registry 接口。过期的绑定码会被顺带清理。
func (r *MemoryRegistry) Lookup(_ context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrCodeNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.codes[code]
	if !ok {
		return "", ErrCodeNotFound
	}
	if !entry.expiresAt.After(r.now()) {
		delete(r.codes, code)
		if r.byWallet[entry.walletID] == code {
			delete(r.byWallet, entry.walletID)
		}
		return "", ErrCodeNotFound
	}
	return entry.walletID, nil
}

// Outstanding 实现 Registry 接口。
func (r *MemoryRegistry) Outstanding(_ context.Context, walletID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	walletID = strings.TrimSpace(walletID)
	code, ok := r.byWallet[walletID]
	if !ok {
		return "", false, nil
	}
	entry, live := r.codes[code]
	if !live || entry.walletID != walletID || !entry.expiresAt.After(r.now()) {
		return "", false, nil
	}
	return code, true, nil
}

// Close 对内存注册表无需操作。
func (r *MemoryRegistry) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Registry = (*MemoryRegistry)(nil)
